// Package ledgerstore persists the money side of the engine: treasury totals,
// platform fees, stakes and yield distributions. Every chain-driven mutation
// runs inside one atomic unit of work and journals its transaction hash, so
// redelivered events surface as ErrDuplicateTx instead of double-credits.
package ledgerstore

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

var (
	// ErrNotFound is returned when a lookup finds no matching record.
	ErrNotFound = errors.New("ledger record not found")

	// ErrDuplicateTx is returned when a chain transaction hash has already
	// been applied. Callers treat it as a benign redelivery.
	ErrDuplicateTx = errors.New("transaction already applied")

	// ErrDuplicateDistribution is returned when a yield distribution id has
	// already been applied.
	ErrDuplicateDistribution = errors.New("distribution already applied")
)

// TxKind classifies a journaled chain transaction.
type TxKind string

const (
	TxKindFeeReceived  TxKind = "fee_received"
	TxKindFeesStaked   TxKind = "fees_staked"
	TxKindStake        TxKind = "stake"
	TxKindUnstake      TxKind = "unstake"
	TxKindYieldClaim   TxKind = "yield_claim"
	TxKindYieldHarvest TxKind = "yield_harvest"
)

// Tx is one atomic unit of work against the ledger. All reads observe
// current committed state; all writes commit or roll back together.
type Tx interface {
	// Stats returns the treasury totals singleton, creating the zeroed row
	// on first use. The row stays locked until the unit of work completes.
	Stats(ctx context.Context) (*treasury.Stats, error)
	// PutStats writes back the treasury totals singleton.
	PutStats(ctx context.Context, stats *treasury.Stats) error

	// Journal records a chain transaction hash as applied. Returns
	// ErrDuplicateTx if the hash was journaled before.
	Journal(ctx context.Context, txHash common.Hash, kind TxKind) error

	// InsertFee creates an immutable fee record. Returns ErrDuplicateTx if a
	// fee with the same transaction hash exists.
	InsertFee(ctx context.Context, fee *treasury.Fee) error
	// MarkPendingFeesStaked flips every unstaked fee row to staked with the
	// given staking transaction hash, returning the number of rows updated.
	MarkPendingFeesStaked(ctx context.Context, stakingTxHash common.Hash, at time.Time) (int64, error)

	// ActiveStake returns the staker's active stake locked for update, or
	// ErrNotFound.
	ActiveStake(ctx context.Context, staker common.Address) (*staking.Stake, error)
	// ActiveStakes returns all active stakes ordered by id.
	ActiveStakes(ctx context.Context) ([]*staking.Stake, error)
	// InsertStake creates a new active stake row.
	InsertStake(ctx context.Context, stake *staking.Stake) error
	// UpdateStake writes back an existing stake row by id.
	UpdateStake(ctx context.Context, stake *staking.Stake) error
	// CreditPendingYield adds share to the pending yield of one stake row.
	CreditPendingYield(ctx context.Context, stakeID int64, share amount.Amount) error

	// InsertDistribution records a distribution id. Returns
	// ErrDuplicateDistribution if the id was applied before.
	InsertDistribution(ctx context.Context, dist *staking.Distribution) error
}

// FeeQuery filters fee history listings.
type FeeQuery struct {
	SourceType *treasury.FeeSource
	Limit      int
	Offset     int
}

// Reader is the read-only query surface of the ledger, used outside atomic
// units of work.
type Reader interface {
	// GetStats returns the treasury totals, or zeroed totals when the
	// singleton has not been created yet.
	GetStats(ctx context.Context) (*treasury.Stats, error)
	// FeeHistory lists fee records newest-first with the total match count.
	FeeHistory(ctx context.Context, q FeeQuery) ([]*treasury.Fee, int, error)
	// ActiveStakeOf returns the staker's active stake, or ErrNotFound.
	ActiveStakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error)
	// ListActiveStakes pages through active stakes with the total count.
	ListActiveStakes(ctx context.Context, limit, offset int) ([]*staking.Stake, int, error)
	// TotalStaked returns the sum of all active stake amounts.
	TotalStaked(ctx context.Context) (amount.Amount, error)
}

// Store is the full ledger persistence contract.
type Store interface {
	Reader
	// Atomic runs fn inside one database transaction.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

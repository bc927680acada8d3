// Package staking defines the domain model for governance-token stakes and
// the proportional yield distribution arithmetic.
package staking

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

// Stake is the single active stake row for a staker. Fully unstaked rows are
// deactivated and kept for history, never deleted.
type Stake struct {
	ID             int64
	Staker         common.Address
	Amount         amount.Amount
	PendingYield   amount.Amount
	ClaimedYield   amount.Amount
	LifetimeStaked amount.Amount
	IsActive       bool
	StakedAt       time.Time
	UnstakedAt     *time.Time
	UpdatedAt      time.Time
}

// StakerShare is a staker listing entry with the stake's share of the total
// staked supply in basis points: amount × 10000 / totalStaked.
type StakerShare struct {
	Stake
	ShareOfTreasuryBps amount.Amount
}

// Distribution records one yield distribution run. The ID doubles as the
// idempotency key: re-applying a distribution with a known ID is a no-op.
type Distribution struct {
	ID          string
	YieldAmount amount.Amount
	StakerCount int
	Distributed amount.Amount
	Dust        amount.Amount
	CreatedAt   time.Time
}

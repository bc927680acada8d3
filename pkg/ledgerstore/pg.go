package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

type pgStore struct {
	db *bun.DB
	ops
}

// NewStore creates a postgres implementation of the ledger store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db, ops: ops{idb: db}}
}

func (s *pgStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &ops{idb: tx})
	})
}

// ops implements Tx against either the database or a transaction handle.
type ops struct {
	idb bun.IDB
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func (o *ops) Stats(ctx context.Context) (*treasury.Stats, error) {
	// Locked read: PutStats writes absolute totals back, so a concurrent
	// unit of work must not read the row until this one commits.
	dao := new(StatsDao)
	err := o.idb.NewSelect().Model(dao).Where("id = ?", statsRowID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		// Lazily create the zeroed singleton. ON CONFLICT DO NOTHING keeps
		// concurrent first-use racers from failing.
		dao = &StatsDao{ID: statsRowID}
		if _, err := o.idb.NewInsert().Model(dao).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to create treasury stats: %w", err)
		}
		dao = new(StatsDao)
		if err := o.idb.NewSelect().Model(dao).Where("id = ?", statsRowID).For("UPDATE").Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to reload treasury stats: %w", err)
		}
		return toStats(dao), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury stats: %w", err)
	}
	return toStats(dao), nil
}

func (o *ops) PutStats(ctx context.Context, stats *treasury.Stats) error {
	dao := toStatsDao(stats)
	_, err := o.idb.NewUpdate().
		Model(dao).
		WherePK().
		Set("total_fees_collected = ?", dao.TotalFeesCollected).
		Set("total_fees_staked = ?", dao.TotalFeesStaked).
		Set("pending_fees_to_stake = ?", dao.PendingFeesToStake).
		Set("total_yield_distributed = ?", dao.TotalYieldDistributed).
		Set("operational_funds = ?", dao.OperationalFunds).
		Set("endowment_principal = ?", dao.EndowmentPrincipal).
		Set("endowment_lifetime_yield = ?", dao.EndowmentLifetimeYield).
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update treasury stats: %w", err)
	}
	return nil
}

func (o *ops) Journal(ctx context.Context, txHash common.Hash, kind TxKind) error {
	dao := &LedgerTxnDao{TxHash: txHash.Hex(), Kind: string(kind)}
	_, err := o.idb.NewInsert().Model(dao).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, txHash.Hex())
	}
	if err != nil {
		return fmt.Errorf("failed to journal transaction: %w", err)
	}
	return nil
}

func (o *ops) InsertFee(ctx context.Context, fee *treasury.Fee) error {
	dao := toFeeDao(fee)
	_, err := o.idb.NewInsert().Model(dao).Returning("id, created_at").Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: fee %s", ErrDuplicateTx, fee.TxHash.Hex())
	}
	if err != nil {
		return fmt.Errorf("failed to insert fee: %w", err)
	}
	fee.ID = dao.ID
	fee.CreatedAt = dao.CreatedAt
	return nil
}

func (o *ops) MarkPendingFeesStaked(ctx context.Context, stakingTxHash common.Hash, at time.Time) (int64, error) {
	res, err := o.idb.NewUpdate().
		Model((*FeeDao)(nil)).
		Set("is_staked = TRUE").
		Set("staking_tx_hash = ?", stakingTxHash.Hex()).
		Set("staked_at = ?", at).
		Where("is_staked = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to mark fees staked: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows, nil
}

func (o *ops) ActiveStake(ctx context.Context, staker common.Address) (*staking.Stake, error) {
	// Locked read, same reason as Stats: UpdateStake writes back absolute
	// values for the row.
	dao := new(StakeDao)
	err := o.idb.NewSelect().
		Model(dao).
		Where("staker = ?", staker.Hex()).
		Where("is_active = TRUE").
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: active stake for %s", ErrNotFound, staker.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake: %w", err)
	}
	return toStake(dao), nil
}

func (o *ops) ActiveStakes(ctx context.Context) ([]*staking.Stake, error) {
	var daos []StakeDao
	err := o.idb.NewSelect().
		Model(&daos).
		Where("is_active = TRUE").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active stakes: %w", err)
	}
	stakes := make([]*staking.Stake, len(daos))
	for i := range daos {
		stakes[i] = toStake(&daos[i])
	}
	return stakes, nil
}

func (o *ops) InsertStake(ctx context.Context, stake *staking.Stake) error {
	dao := toStakeDao(stake)
	_, err := o.idb.NewInsert().Model(dao).Returning("id, staked_at, updated_at").Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("active stake for %s already exists: %w", stake.Staker.Hex(), err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert stake: %w", err)
	}
	stake.ID = dao.ID
	stake.StakedAt = dao.StakedAt
	stake.UpdatedAt = dao.UpdatedAt
	return nil
}

func (o *ops) UpdateStake(ctx context.Context, stake *staking.Stake) error {
	dao := toStakeDao(stake)
	_, err := o.idb.NewUpdate().
		Model(dao).
		WherePK().
		Set("amount = ?", dao.Amount).
		Set("pending_yield = ?", dao.PendingYield).
		Set("claimed_yield = ?", dao.ClaimedYield).
		Set("lifetime_staked = ?", dao.LifetimeStaked).
		Set("is_active = ?", dao.IsActive).
		Set("unstaked_at = ?", dao.UnstakedAt).
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update stake %d: %w", stake.ID, err)
	}
	return nil
}

func (o *ops) CreditPendingYield(ctx context.Context, stakeID int64, share amount.Amount) error {
	_, err := o.idb.NewUpdate().
		Model((*StakeDao)(nil)).
		Set("pending_yield = pending_yield + ?::NUMERIC", share).
		Set("updated_at = NOW()").
		Where("id = ?", stakeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit yield to stake %d: %w", stakeID, err)
	}
	return nil
}

func (o *ops) InsertDistribution(ctx context.Context, dist *staking.Distribution) error {
	dao := toDistributionDao(dist)
	_, err := o.idb.NewInsert().Model(dao).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateDistribution, dist.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}
	return nil
}

// Read-only query surface.

func (o *ops) GetStats(ctx context.Context) (*treasury.Stats, error) {
	dao := new(StatsDao)
	err := o.idb.NewSelect().Model(dao).Where("id = ?", statsRowID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		// No fee has ever been recorded; report zeroed totals.
		return &treasury.Stats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury stats: %w", err)
	}
	return toStats(dao), nil
}

func (o *ops) FeeHistory(ctx context.Context, q FeeQuery) ([]*treasury.Fee, int, error) {
	var daos []FeeDao
	query := o.idb.NewSelect().Model(&daos)
	if q.SourceType != nil {
		query = query.Where("source_type = ?", q.SourceType.String())
	}
	total, err := query.
		Order("created_at DESC", "id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list fees: %w", err)
	}
	fees := make([]*treasury.Fee, len(daos))
	for i := range daos {
		fee, err := toFee(&daos[i])
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode fee %d: %w", daos[i].ID, err)
		}
		fees[i] = fee
	}
	return fees, total, nil
}

func (o *ops) ActiveStakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error) {
	return o.ActiveStake(ctx, staker)
}

func (o *ops) ListActiveStakes(ctx context.Context, limit, offset int) ([]*staking.Stake, int, error) {
	var daos []StakeDao
	total, err := o.idb.NewSelect().
		Model(&daos).
		Where("is_active = TRUE").
		Order("amount DESC", "id ASC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stakers: %w", err)
	}
	stakes := make([]*staking.Stake, len(daos))
	for i := range daos {
		stakes[i] = toStake(&daos[i])
	}
	return stakes, total, nil
}

func (o *ops) TotalStaked(ctx context.Context) (amount.Amount, error) {
	var total amount.Amount
	err := o.idb.NewSelect().
		Model((*StakeDao)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("is_active = TRUE").
		Scan(ctx, &total)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to sum staked amounts: %w", err)
	}
	return total, nil
}

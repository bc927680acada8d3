package ledgerstore

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

// statsRowID is the fixed primary key of the treasury totals singleton.
const statsRowID = 1

// StatsDao is a data access object that maps directly to the 'treasury_stats'
// table in PostgreSQL. The table holds exactly one row.
type StatsDao struct {
	bun.BaseModel          `bun:"table:treasury_stats,alias:ts"`
	ID                     int64         `bun:"id,pk"`
	TotalFeesCollected     amount.Amount `bun:"total_fees_collected,notnull,type:numeric(78,0)"`
	TotalFeesStaked        amount.Amount `bun:"total_fees_staked,notnull,type:numeric(78,0)"`
	PendingFeesToStake     amount.Amount `bun:"pending_fees_to_stake,notnull,type:numeric(78,0)"`
	TotalYieldDistributed  amount.Amount `bun:"total_yield_distributed,notnull,type:numeric(78,0)"`
	OperationalFunds       amount.Amount `bun:"operational_funds,notnull,type:numeric(78,0)"`
	EndowmentPrincipal     amount.Amount `bun:"endowment_principal,notnull,type:numeric(78,0)"`
	EndowmentLifetimeYield amount.Amount `bun:"endowment_lifetime_yield,notnull,type:numeric(78,0)"`
	UpdatedAt              time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
}

// FeeDao is a data access object that maps directly to the 'platform_fees'
// table in PostgreSQL.
type FeeDao struct {
	bun.BaseModel `bun:"table:platform_fees,alias:pf"`
	ID            int64         `bun:"id,pk,autoincrement"`
	Source        string        `bun:"source,notnull,type:varchar(42)"`
	SourceType    string        `bun:"source_type,notnull,type:varchar(32)"`
	Amount        amount.Amount `bun:"amount,notnull,type:numeric(78,0)"`
	TxHash        string        `bun:"tx_hash,unique,notnull,type:varchar(66)"`
	ChainID       int64         `bun:"chain_id,notnull"`
	BlockNumber   int64         `bun:"block_number,notnull"`
	IsStaked      bool          `bun:"is_staked,notnull,default:false"`
	StakingTxHash *string       `bun:"staking_tx_hash,type:varchar(66)"`
	StakedAt      *time.Time    `bun:"staked_at"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
}

// StakeDao is a data access object that maps directly to the 'stakes' table
// in PostgreSQL. At most one active row per staker, enforced by a partial
// unique index.
type StakeDao struct {
	bun.BaseModel  `bun:"table:stakes,alias:st"`
	ID             int64         `bun:"id,pk,autoincrement"`
	Staker         string        `bun:"staker,notnull,type:varchar(42)"`
	Amount         amount.Amount `bun:"amount,notnull,type:numeric(78,0)"`
	PendingYield   amount.Amount `bun:"pending_yield,notnull,type:numeric(78,0)"`
	ClaimedYield   amount.Amount `bun:"claimed_yield,notnull,type:numeric(78,0)"`
	LifetimeStaked amount.Amount `bun:"lifetime_staked,notnull,type:numeric(78,0)"`
	IsActive       bool          `bun:"is_active,notnull,default:true"`
	StakedAt       time.Time     `bun:"staked_at,nullzero,default:current_timestamp"`
	UnstakedAt     *time.Time    `bun:"unstaked_at"`
	UpdatedAt      time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
}

// LedgerTxnDao is a data access object that maps directly to the
// 'ledger_txns' table in PostgreSQL: the applied-transaction journal.
type LedgerTxnDao struct {
	bun.BaseModel `bun:"table:ledger_txns,alias:lt"`
	TxHash        string    `bun:"tx_hash,pk,type:varchar(66)"`
	Kind          string    `bun:"kind,notnull,type:varchar(32)"`
	AppliedAt     time.Time `bun:"applied_at,nullzero,default:current_timestamp"`
}

// DistributionDao is a data access object that maps directly to the
// 'yield_distributions' table in PostgreSQL.
type DistributionDao struct {
	bun.BaseModel `bun:"table:yield_distributions,alias:yd"`
	ID            string        `bun:"id,pk,type:varchar(78)"`
	YieldAmount   amount.Amount `bun:"yield_amount,notnull,type:numeric(78,0)"`
	StakerCount   int           `bun:"staker_count,notnull"`
	Distributed   amount.Amount `bun:"distributed,notnull,type:numeric(78,0)"`
	Dust          amount.Amount `bun:"dust,notnull,type:numeric(78,0)"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
}

func toStatsDao(stats *treasury.Stats) *StatsDao {
	return &StatsDao{
		ID:                     statsRowID,
		TotalFeesCollected:     stats.TotalFeesCollected,
		TotalFeesStaked:        stats.TotalFeesStaked,
		PendingFeesToStake:     stats.PendingFeesToStake,
		TotalYieldDistributed:  stats.TotalYieldDistributed,
		OperationalFunds:       stats.OperationalFunds,
		EndowmentPrincipal:     stats.EndowmentPrincipal,
		EndowmentLifetimeYield: stats.EndowmentLifetimeYield,
	}
}

func toStats(dao *StatsDao) *treasury.Stats {
	return &treasury.Stats{
		TotalFeesCollected:     dao.TotalFeesCollected,
		TotalFeesStaked:        dao.TotalFeesStaked,
		PendingFeesToStake:     dao.PendingFeesToStake,
		TotalYieldDistributed:  dao.TotalYieldDistributed,
		OperationalFunds:       dao.OperationalFunds,
		EndowmentPrincipal:     dao.EndowmentPrincipal,
		EndowmentLifetimeYield: dao.EndowmentLifetimeYield,
		UpdatedAt:              dao.UpdatedAt,
	}
}

func toFeeDao(fee *treasury.Fee) *FeeDao {
	dao := &FeeDao{
		ID:          fee.ID,
		Source:      fee.Source.Hex(),
		SourceType:  fee.SourceType.String(),
		Amount:      fee.Amount,
		TxHash:      fee.TxHash.Hex(),
		ChainID:     fee.ChainID,
		BlockNumber: fee.BlockNumber,
		IsStaked:    fee.IsStaked,
		StakedAt:    fee.StakedAt,
	}
	if fee.StakingTxHash != nil {
		h := fee.StakingTxHash.Hex()
		dao.StakingTxHash = &h
	}
	return dao
}

func toFee(dao *FeeDao) (*treasury.Fee, error) {
	sourceType, err := treasury.ParseFeeSource(dao.SourceType)
	if err != nil {
		return nil, err
	}
	fee := &treasury.Fee{
		ID:          dao.ID,
		Source:      common.HexToAddress(dao.Source),
		SourceType:  sourceType,
		Amount:      dao.Amount,
		TxHash:      common.HexToHash(dao.TxHash),
		ChainID:     dao.ChainID,
		BlockNumber: dao.BlockNumber,
		IsStaked:    dao.IsStaked,
		StakedAt:    dao.StakedAt,
		CreatedAt:   dao.CreatedAt,
	}
	if dao.StakingTxHash != nil {
		h := common.HexToHash(*dao.StakingTxHash)
		fee.StakingTxHash = &h
	}
	return fee, nil
}

func toStakeDao(stake *staking.Stake) *StakeDao {
	return &StakeDao{
		ID:             stake.ID,
		Staker:         stake.Staker.Hex(),
		Amount:         stake.Amount,
		PendingYield:   stake.PendingYield,
		ClaimedYield:   stake.ClaimedYield,
		LifetimeStaked: stake.LifetimeStaked,
		IsActive:       stake.IsActive,
		StakedAt:       stake.StakedAt,
		UnstakedAt:     stake.UnstakedAt,
	}
}

func toStake(dao *StakeDao) *staking.Stake {
	return &staking.Stake{
		ID:             dao.ID,
		Staker:         common.HexToAddress(dao.Staker),
		Amount:         dao.Amount,
		PendingYield:   dao.PendingYield,
		ClaimedYield:   dao.ClaimedYield,
		LifetimeStaked: dao.LifetimeStaked,
		IsActive:       dao.IsActive,
		StakedAt:       dao.StakedAt,
		UnstakedAt:     dao.UnstakedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
}

func toDistributionDao(dist *staking.Distribution) *DistributionDao {
	return &DistributionDao{
		ID:          dist.ID,
		YieldAmount: dist.YieldAmount,
		StakerCount: dist.StakerCount,
		Distributed: dist.Distributed,
		Dust:        dist.Dust,
	}
}

// Package service implements the stake ledger and yield distribution
// business logic on top of the ledger store's atomic units of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/internal/metrics"
	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/staking"
)

// Service defines the stake ledger operations.
type Service interface {
	// RecordStake adds amount to the staker's active stake, creating it when
	// none exists. The stake row and the lifetime counter move in the same
	// atomic unit of work.
	RecordStake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash, blockNumber, chainID int64) (*staking.Stake, error)

	// RecordUnstake decrements the active stake by amount, clamping at zero
	// and deactivating on full unstake. The lifetime counter drops by the
	// full amount regardless of clamp. With no active stake the event is a
	// logged no-op.
	RecordUnstake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error

	// RecordYieldClaim zeroes the stake's pending yield, adds amount to its
	// claimed total and to the treasury's distributed total. With no active
	// stake the event is a logged no-op.
	RecordYieldClaim(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error

	// DistributeYield splits a harvested yield amount proportionally across
	// all active stakes in one atomic unit of work, keyed by distributionID
	// so a redelivered distribution is a no-op. With no active stakes the
	// whole amount goes to operational funds instead.
	DistributeYield(ctx context.Context, yieldAmount amount.Amount, distributionID string) error

	// StakeOf returns the staker's active stake.
	StakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error)

	// ClaimableYield returns the staker's pending yield, zero when the
	// staker has no active stake.
	ClaimableYield(ctx context.Context, staker common.Address) (amount.Amount, error)

	// Stakers pages through active stakes largest-first, annotating each
	// with its share of the total staked supply in basis points.
	Stakers(ctx context.Context, limit, offset int) ([]*staking.StakerShare, int, error)
}

type stakingService struct {
	store  ledgerstore.Store
	logger *zap.Logger
}

// NewService creates a new stake ledger service
func NewService(store ledgerstore.Store, logger *zap.Logger) Service {
	return &stakingService{
		store:  store,
		logger: logger,
	}
}

func (s *stakingService) RecordStake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash, blockNumber, chainID int64) (*staking.Stake, error) {
	var stake *staking.Stake
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		if err := tx.Journal(ctx, txHash, ledgerstore.TxKindStake); err != nil {
			return err
		}
		existing, err := tx.ActiveStake(ctx, staker)
		if errors.Is(err, ledgerstore.ErrNotFound) {
			stake = &staking.Stake{
				Staker:         staker,
				Amount:         amt,
				LifetimeStaked: amt,
				IsActive:       true,
			}
			return tx.InsertStake(ctx, stake)
		}
		if err != nil {
			return err
		}
		existing.Amount = existing.Amount.Add(amt)
		existing.LifetimeStaked = existing.LifetimeStaked.Add(amt)
		stake = existing
		return tx.UpdateStake(ctx, existing)
	})
	if errors.Is(err, ledgerstore.ErrDuplicateTx) {
		return nil, apperrors.ConflictError(err, "stake transaction already recorded")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to record stake: %w", err))
	}

	s.logger.Info("recorded stake",
		zap.String("staker", staker.Hex()),
		zap.String("amount", amt.String()),
		zap.String("tx_hash", txHash.Hex()),
		zap.Int64("block_number", blockNumber),
		zap.Int64("chain_id", chainID))
	return stake, nil
}

func (s *stakingService) RecordUnstake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error {
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		if err := tx.Journal(ctx, txHash, ledgerstore.TxKindUnstake); err != nil {
			return err
		}
		stake, err := tx.ActiveStake(ctx, staker)
		if errors.Is(err, ledgerstore.ErrNotFound) {
			// Likely a duplicate or out-of-order delivery; the journal entry
			// still commits so a redelivery conflicts instead of repeating.
			s.logger.Warn("unstake with no active stake",
				zap.String("staker", staker.Hex()),
				zap.String("tx_hash", txHash.Hex()))
			return nil
		}
		if err != nil {
			return err
		}

		remaining, clamped := stake.Amount.SubClamped(amt)
		stake.Amount = remaining
		lifetime, _ := stake.LifetimeStaked.SubClamped(amt)
		stake.LifetimeStaked = lifetime
		if clamped {
			s.logger.Warn("unstake exceeded active stake, clamped to zero",
				zap.String("staker", staker.Hex()),
				zap.String("amount", amt.String()),
				zap.String("tx_hash", txHash.Hex()))
		}
		if stake.Amount.IsZero() {
			now := time.Now().UTC()
			stake.IsActive = false
			stake.UnstakedAt = &now
		}
		return tx.UpdateStake(ctx, stake)
	})
	if errors.Is(err, ledgerstore.ErrDuplicateTx) {
		return apperrors.ConflictError(err, "unstake transaction already recorded")
	}
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to record unstake: %w", err))
	}

	s.logger.Info("recorded unstake",
		zap.String("staker", staker.Hex()),
		zap.String("amount", amt.String()),
		zap.String("tx_hash", txHash.Hex()))
	return nil
}

func (s *stakingService) RecordYieldClaim(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error {
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		if err := tx.Journal(ctx, txHash, ledgerstore.TxKindYieldClaim); err != nil {
			return err
		}
		stake, err := tx.ActiveStake(ctx, staker)
		if errors.Is(err, ledgerstore.ErrNotFound) {
			s.logger.Warn("yield claim with no active stake",
				zap.String("staker", staker.Hex()),
				zap.String("tx_hash", txHash.Hex()))
			return nil
		}
		if err != nil {
			return err
		}

		stake.PendingYield = amount.Zero()
		stake.ClaimedYield = stake.ClaimedYield.Add(amt)
		if err := tx.UpdateStake(ctx, stake); err != nil {
			return err
		}

		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalYieldDistributed = stats.TotalYieldDistributed.Add(amt)
		return tx.PutStats(ctx, stats)
	})
	if errors.Is(err, ledgerstore.ErrDuplicateTx) {
		return apperrors.ConflictError(err, "yield claim transaction already recorded")
	}
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to record yield claim: %w", err))
	}

	s.logger.Info("recorded yield claim",
		zap.String("staker", staker.Hex()),
		zap.String("amount", amt.String()),
		zap.String("tx_hash", txHash.Hex()))
	return nil
}

func (s *stakingService) DistributeYield(ctx context.Context, yieldAmount amount.Amount, distributionID string) error {
	timer := prometheus.NewTimer(metrics.DistributionDuration)
	defer timer.ObserveDuration()

	var plan *staking.DistributionPlan
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		stakes, err := tx.ActiveStakes(ctx)
		if err != nil {
			return err
		}
		plan, err = staking.PlanDistribution(yieldAmount, stakes)
		if err != nil {
			return err
		}

		dist := &staking.Distribution{
			ID:          distributionID,
			YieldAmount: yieldAmount,
			StakerCount: len(plan.Shares),
			Distributed: plan.Distributed,
			Dust:        plan.Dust,
		}
		if err := tx.InsertDistribution(ctx, dist); err != nil {
			return err
		}

		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		if len(plan.Shares) == 0 {
			// No stakers to reward; the whole harvest funds operations.
			stats.OperationalFunds = stats.OperationalFunds.Add(yieldAmount)
		}
		stats.EndowmentLifetimeYield = stats.EndowmentLifetimeYield.Add(yieldAmount)
		if err := tx.PutStats(ctx, stats); err != nil {
			return err
		}

		for _, share := range plan.Shares {
			if share.Amount.IsZero() {
				continue
			}
			if err := tx.CreditPendingYield(ctx, share.StakeID, share.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ledgerstore.ErrDuplicateDistribution) {
		return apperrors.ConflictError(err, "distribution already applied")
	}
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to distribute yield: %w", err))
	}

	s.logger.Info("distributed yield",
		zap.String("distribution_id", distributionID),
		zap.String("yield_amount", yieldAmount.String()),
		zap.Int("staker_count", len(plan.Shares)),
		zap.String("distributed", plan.Distributed.String()),
		zap.String("dust", plan.Dust.String()))
	return nil
}

func (s *stakingService) StakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error) {
	stake, err := s.store.ActiveStakeOf(ctx, staker)
	if errors.Is(err, ledgerstore.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "no active stake for staker")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to get stake: %w", err))
	}
	return stake, nil
}

func (s *stakingService) ClaimableYield(ctx context.Context, staker common.Address) (amount.Amount, error) {
	stake, err := s.store.ActiveStakeOf(ctx, staker)
	if errors.Is(err, ledgerstore.ErrNotFound) {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), apperrors.GeneralError(fmt.Errorf("failed to get claimable yield: %w", err))
	}
	return stake.PendingYield, nil
}

func (s *stakingService) Stakers(ctx context.Context, limit, offset int) ([]*staking.StakerShare, int, error) {
	stakes, total, err := s.store.ListActiveStakes(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to list stakers: %w", err))
	}
	totalStaked, err := s.store.TotalStaked(ctx)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to sum staked amounts: %w", err))
	}

	shares := make([]*staking.StakerShare, len(stakes))
	for i, stake := range stakes {
		bps := amount.Zero()
		if !totalStaked.IsZero() {
			bps, err = stake.Amount.MulDiv(amount.New(10000), totalStaked)
			if err != nil {
				return nil, 0, apperrors.GeneralError(err)
			}
		}
		shares[i] = &staking.StakerShare{Stake: *stake, ShareOfTreasuryBps: bps}
	}
	return shares, total, nil
}

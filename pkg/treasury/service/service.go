// Package service implements the fee ledger business logic on top of the
// ledger store's atomic units of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

// Service defines the fee ledger operations.
type Service interface {
	// RecordFeeReceived applies an inbound platform fee: one atomic unit of
	// work inserting the fee record, journaling the transaction hash and
	// incrementing the collected and pending totals. A transaction hash seen
	// before returns a conflict error.
	RecordFeeReceived(ctx context.Context, source common.Address, amt amount.Amount, sourceType treasury.FeeSource, txHash common.Hash, blockNumber, chainID int64) (*treasury.Fee, error)

	// RecordFeesStaked applies a fee-staking batch: total_fees_staked grows by
	// amt, pending resets to zero, operational funds receive their share of
	// the batch, the endowment principal grows by endowmentAmount and every
	// pending fee row is marked staked. All-or-nothing.
	RecordFeesStaked(ctx context.Context, amt, endowmentAmount amount.Amount, txHash common.Hash) error

	// Stats returns the current treasury totals.
	Stats(ctx context.Context) (*treasury.Stats, error)

	// FeeHistory lists fee records newest-first.
	FeeHistory(ctx context.Context, q ledgerstore.FeeQuery) ([]*treasury.Fee, int, error)
}

type treasuryService struct {
	store  ledgerstore.Store
	logger *zap.Logger
}

// NewService creates a new fee ledger service
func NewService(store ledgerstore.Store, logger *zap.Logger) Service {
	return &treasuryService{
		store:  store,
		logger: logger,
	}
}

func (s *treasuryService) RecordFeeReceived(ctx context.Context, source common.Address, amt amount.Amount, sourceType treasury.FeeSource, txHash common.Hash, blockNumber, chainID int64) (*treasury.Fee, error) {
	fee := &treasury.Fee{
		Source:      source,
		SourceType:  sourceType,
		Amount:      amt,
		TxHash:      txHash,
		ChainID:     chainID,
		BlockNumber: blockNumber,
	}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		if err := tx.Journal(ctx, txHash, ledgerstore.TxKindFeeReceived); err != nil {
			return err
		}
		if err := tx.InsertFee(ctx, fee); err != nil {
			return err
		}
		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalFeesCollected = stats.TotalFeesCollected.Add(amt)
		stats.PendingFeesToStake = stats.PendingFeesToStake.Add(amt)
		return tx.PutStats(ctx, stats)
	})
	if errors.Is(err, ledgerstore.ErrDuplicateTx) {
		return nil, apperrors.ConflictError(err, "fee transaction already recorded")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to record fee: %w", err))
	}

	s.logger.Info("recorded platform fee",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("source", source.Hex()),
		zap.String("source_type", sourceType.String()),
		zap.String("amount", amt.String()))
	return fee, nil
}

func (s *treasuryService) RecordFeesStaked(ctx context.Context, amt, endowmentAmount amount.Amount, txHash common.Hash) error {
	var marked int64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledgerstore.Tx) error {
		if err := tx.Journal(ctx, txHash, ledgerstore.TxKindFeesStaked); err != nil {
			return err
		}
		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		stats.TotalFeesStaked = stats.TotalFeesStaked.Add(amt)
		stats.PendingFeesToStake = amount.Zero()
		stats.OperationalFunds = stats.OperationalFunds.Add(treasury.OperationalShare(amt))
		stats.EndowmentPrincipal = stats.EndowmentPrincipal.Add(endowmentAmount)
		if err := tx.PutStats(ctx, stats); err != nil {
			return err
		}
		marked, err = tx.MarkPendingFeesStaked(ctx, txHash, time.Now().UTC())
		return err
	})
	if errors.Is(err, ledgerstore.ErrDuplicateTx) {
		return apperrors.ConflictError(err, "staking transaction already recorded")
	}
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to record staked fees: %w", err))
	}

	s.logger.Info("recorded fee staking batch",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("amount", amt.String()),
		zap.String("endowment_amount", endowmentAmount.String()),
		zap.Int64("fees_marked", marked))
	return nil
}

func (s *treasuryService) Stats(ctx context.Context) (*treasury.Stats, error) {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to get treasury stats: %w", err))
	}
	return stats, nil
}

func (s *treasuryService) FeeHistory(ctx context.Context, q ledgerstore.FeeQuery) ([]*treasury.Fee, int, error) {
	fees, total, err := s.store.FeeHistory(ctx, q)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to list fees: %w", err))
	}
	return fees, total, nil
}

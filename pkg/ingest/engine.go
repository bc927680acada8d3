package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/internal/metrics"
	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

// FeeRecorder is the fee ledger surface the engine dispatches to.
type FeeRecorder interface {
	RecordFeeReceived(ctx context.Context, source common.Address, amt amount.Amount, sourceType treasury.FeeSource, txHash common.Hash, blockNumber, chainID int64) (*treasury.Fee, error)
	RecordFeesStaked(ctx context.Context, amt, endowmentAmount amount.Amount, txHash common.Hash) error
}

// StakeRecorder is the stake ledger surface the engine dispatches to.
type StakeRecorder interface {
	RecordStake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash, blockNumber, chainID int64) (*staking.Stake, error)
	RecordUnstake(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error
	RecordYieldClaim(ctx context.Context, staker common.Address, amt amount.Amount, txHash common.Hash) error
	DistributeYield(ctx context.Context, yieldAmount amount.Amount, distributionID string) error
}

// BalanceSyncer upserts cached governance-token wallet balances.
type BalanceSyncer interface {
	SyncWalletBalance(ctx context.Context, addr common.Address, balance amount.Amount) error
}

// Engine applies decoded events to the ledger services.
type Engine struct {
	fees     FeeRecorder
	stakes   StakeRecorder
	balances BalanceSyncer
	logger   *zap.Logger
}

// NewEngine creates an event application engine.
func NewEngine(fees FeeRecorder, stakes StakeRecorder, balances BalanceSyncer, logger *zap.Logger) *Engine {
	return &Engine{
		fees:     fees,
		stakes:   stakes,
		balances: balances,
		logger:   logger,
	}
}

// Apply dispatches one event to its service. A conflict from an
// already-applied transaction hash is swallowed as a redelivery; every other
// error surfaces to the caller for retry.
func (e *Engine) Apply(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		metrics.EventsApplied.WithLabelValues(string(ev.Kind), "invalid").Inc()
		return apperrors.BadRequestError(err, "invalid event")
	}

	timer := prometheus.NewTimer(metrics.EventDuration.WithLabelValues(string(ev.Kind)))
	defer timer.ObserveDuration()

	err := e.dispatch(ctx, ev)
	if apperrors.Is(err, apperrors.CategoryDataConflict) {
		// At-least-once delivery; the first application already committed.
		e.logger.Info("skipping redelivered event",
			zap.String("kind", string(ev.Kind)),
			zap.String("tx_hash", ev.TxHash.Hex()))
		metrics.EventsApplied.WithLabelValues(string(ev.Kind), "redelivered").Inc()
		return nil
	}
	if err != nil {
		metrics.EventsApplied.WithLabelValues(string(ev.Kind), "error").Inc()
		metrics.ErrorsTotal.WithLabelValues("ingest", "apply_failed").Inc()
		return err
	}
	metrics.EventsApplied.WithLabelValues(string(ev.Kind), "applied").Inc()
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case EventFeeReceived:
		sourceType, err := treasury.ParseFeeSource(ev.SourceType)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid fee source type")
		}
		_, err = e.fees.RecordFeeReceived(ctx, ev.Source, ev.Amount, sourceType, ev.TxHash, ev.BlockNumber, ev.ChainID)
		return err
	case EventFeesStaked:
		return e.fees.RecordFeesStaked(ctx, ev.Amount, ev.EndowmentAmount, ev.TxHash)
	case EventStaked:
		_, err := e.stakes.RecordStake(ctx, ev.Staker, ev.Amount, ev.TxHash, ev.BlockNumber, ev.ChainID)
		return err
	case EventUnstaked:
		return e.stakes.RecordUnstake(ctx, ev.Staker, ev.Amount, ev.TxHash)
	case EventYieldClaimed:
		return e.stakes.RecordYieldClaim(ctx, ev.Staker, ev.Amount, ev.TxHash)
	case EventYieldHarvested:
		return e.stakes.DistributeYield(ctx, ev.Amount, ev.distributionID())
	case EventBalanceSynced:
		return e.balances.SyncWalletBalance(ctx, ev.Staker, ev.Amount)
	default:
		return apperrors.BadRequestError(fmt.Errorf("unknown event kind %q", ev.Kind), "unknown event kind")
	}
}

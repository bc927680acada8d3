package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore/ledgertest"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

func setupService(t *testing.T) (context.Context, Service, *ledgertest.Store) {
	t.Helper()

	store := ledgertest.NewStore()
	return context.Background(), NewService(store, zap.NewNop()), store
}

func assertAmountEqual(t *testing.T, got amount.Amount, want string) {
	t.Helper()
	if got.String() != want {
		t.Fatalf("amount mismatch: got %s want %s", got.String(), want)
	}
}

func TestService_FeeLifecycle(t *testing.T) {
	ctx, svc, _ := setupService(t)

	source := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fee, err := svc.RecordFeeReceived(ctx, source, amount.New(1000), treasury.FeeSourceFundraiser, common.HexToHash("0xf1"), 100, 84532)
	if err != nil {
		t.Fatalf("RecordFeeReceived() failed: %v", err)
	}
	if fee.ID == 0 {
		t.Fatalf("expected fee id to be assigned")
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalFeesCollected, "1000")
	assertAmountEqual(t, stats.PendingFeesToStake, "1000")

	err = svc.RecordFeesStaked(ctx, amount.New(1000), amount.New(200), common.HexToHash("0xs1"))
	if err != nil {
		t.Fatalf("RecordFeesStaked() failed: %v", err)
	}

	stats, err = svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalFeesStaked, "1000")
	assertAmountEqual(t, stats.PendingFeesToStake, "0")
	assertAmountEqual(t, stats.OperationalFunds, "780")
	assertAmountEqual(t, stats.EndowmentPrincipal, "200")
	// Collected total is lifetime, never reduced by staking.
	assertAmountEqual(t, stats.TotalFeesCollected, "1000")

	fees, total, err := svc.FeeHistory(ctx, ledgerstore.FeeQuery{Limit: 10})
	if err != nil {
		t.Fatalf("FeeHistory() failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 fee, got %d", total)
	}
	if !fees[0].IsStaked {
		t.Fatalf("expected fee row to be marked staked")
	}
}

func TestService_RecordFeeReceived_DuplicateIsConflict(t *testing.T) {
	ctx, svc, _ := setupService(t)

	source := common.HexToAddress("0x1111111111111111111111111111111111111111")
	txHash := common.HexToHash("0xf1")
	if _, err := svc.RecordFeeReceived(ctx, source, amount.New(500), treasury.FeeSourceStakingPool, txHash, 100, 84532); err != nil {
		t.Fatalf("RecordFeeReceived() failed: %v", err)
	}

	_, err := svc.RecordFeeReceived(ctx, source, amount.New(500), treasury.FeeSourceStakingPool, txHash, 100, 84532)
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// Redelivery must not double-count.
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalFeesCollected, "500")
	assertAmountEqual(t, stats.PendingFeesToStake, "500")
}

func TestService_RecordFeesStaked_DuplicateIsConflict(t *testing.T) {
	ctx, svc, _ := setupService(t)

	txHash := common.HexToHash("0xs1")
	if err := svc.RecordFeesStaked(ctx, amount.New(100), amount.Zero(), txHash); err != nil {
		t.Fatalf("RecordFeesStaked() failed: %v", err)
	}

	err := svc.RecordFeesStaked(ctx, amount.New(100), amount.Zero(), txHash)
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalFeesStaked, "100")
}

func TestService_OperationalShareRoundsDown(t *testing.T) {
	ctx, svc, _ := setupService(t)

	// floor(101 * 7800 / 10000) = 78
	if err := svc.RecordFeesStaked(ctx, amount.New(101), amount.Zero(), common.HexToHash("0xs2")); err != nil {
		t.Fatalf("RecordFeesStaked() failed: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	assertAmountEqual(t, stats.OperationalFunds, "78")
	assertAmountEqual(t, stats.TotalFeesStaked, "101")
}

func TestService_JournalKinds(t *testing.T) {
	ctx, svc, store := setupService(t)

	source := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if _, err := svc.RecordFeeReceived(ctx, source, amount.New(10), treasury.FeeSourceOther, common.HexToHash("0xf9"), 1, 1); err != nil {
		t.Fatalf("RecordFeeReceived() failed: %v", err)
	}
	if err := svc.RecordFeesStaked(ctx, amount.New(10), amount.Zero(), common.HexToHash("0xs9")); err != nil {
		t.Fatalf("RecordFeesStaked() failed: %v", err)
	}

	kinds := store.JournaledKinds()
	if kinds[common.HexToHash("0xf9").Hex()] != ledgerstore.TxKindFeeReceived {
		t.Fatalf("expected fee_received journal entry, got %v", kinds)
	}
	if kinds[common.HexToHash("0xs9").Hex()] != ledgerstore.TxKindFeesStaked {
		t.Fatalf("expected fees_staked journal entry, got %v", kinds)
	}
}

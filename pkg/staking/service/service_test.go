package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore/ledgertest"
)

var (
	stakerA = common.HexToAddress("0x000000000000000000000000000000000000aaa1")
	stakerB = common.HexToAddress("0x000000000000000000000000000000000000bbb2")
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

func TestService_RecordStake_CreateThenAdd(t *testing.T) {
	ctx, svc, _ := setupService(t)

	stake, err := svc.RecordStake(ctx, stakerA, amount.New(300), common.HexToHash("0x01"), 10, 84532)
	if err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	assertAmountEqual(t, stake.Amount, "300")
	assertAmountEqual(t, stake.LifetimeStaked, "300")
	if !stake.IsActive {
		t.Fatalf("expected new stake to be active")
	}

	stake, err = svc.RecordStake(ctx, stakerA, amount.New(200), common.HexToHash("0x02"), 11, 84532)
	if err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	assertAmountEqual(t, stake.Amount, "500")
	assertAmountEqual(t, stake.LifetimeStaked, "500")

	got, err := svc.StakeOf(ctx, stakerA)
	if err != nil {
		t.Fatalf("StakeOf() failed: %v", err)
	}
	if got.ID != stake.ID {
		t.Fatalf("expected single stake row, got ids %d and %d", got.ID, stake.ID)
	}
}

func TestService_RecordStake_DuplicateIsConflict(t *testing.T) {
	ctx, svc, _ := setupService(t)

	txHash := common.HexToHash("0x01")
	if _, err := svc.RecordStake(ctx, stakerA, amount.New(100), txHash, 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	_, err := svc.RecordStake(ctx, stakerA, amount.New(100), txHash, 10, 84532)
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	got, err := svc.StakeOf(ctx, stakerA)
	if err != nil {
		t.Fatalf("StakeOf() failed: %v", err)
	}
	assertAmountEqual(t, got.Amount, "100")
}

func TestService_RecordUnstake_PartialAndFull(t *testing.T) {
	ctx, svc, _ := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(500), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	if err := svc.RecordUnstake(ctx, stakerA, amount.New(200), common.HexToHash("0x02")); err != nil {
		t.Fatalf("RecordUnstake() failed: %v", err)
	}
	got, err := svc.StakeOf(ctx, stakerA)
	if err != nil {
		t.Fatalf("StakeOf() failed: %v", err)
	}
	assertAmountEqual(t, got.Amount, "300")
	assertAmountEqual(t, got.LifetimeStaked, "300")
	if !got.IsActive {
		t.Fatalf("expected partial unstake to leave stake active")
	}

	if err := svc.RecordUnstake(ctx, stakerA, amount.New(300), common.HexToHash("0x03")); err != nil {
		t.Fatalf("RecordUnstake() failed: %v", err)
	}
	_, err = svc.StakeOf(ctx, stakerA)
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected not found after full unstake, got %v", err)
	}
}

func TestService_RecordUnstake_ClampsToZero(t *testing.T) {
	ctx, svc, _ := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(100), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	// Unstake more than staked: clamp to zero, deactivate.
	if err := svc.RecordUnstake(ctx, stakerA, amount.New(250), common.HexToHash("0x02")); err != nil {
		t.Fatalf("RecordUnstake() failed: %v", err)
	}
	_, err := svc.StakeOf(ctx, stakerA)
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected not found after clamped unstake, got %v", err)
	}
}

func TestService_RecordUnstake_NoActiveStakeIsNoOp(t *testing.T) {
	ctx, svc, _ := setupService(t)

	if err := svc.RecordUnstake(ctx, stakerA, amount.New(100), common.HexToHash("0x01")); err != nil {
		t.Fatalf("expected benign no-op, got %v", err)
	}

	// The journal entry still commits, so a redelivery is a conflict.
	err := svc.RecordUnstake(ctx, stakerA, amount.New(100), common.HexToHash("0x01"))
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected conflict on redelivery, got %v", err)
	}
}

func TestService_RecordYieldClaim(t *testing.T) {
	ctx, svc, store := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(100), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if err := svc.DistributeYield(ctx, amount.New(40), "dist-1"); err != nil {
		t.Fatalf("DistributeYield() failed: %v", err)
	}

	claimable, err := svc.ClaimableYield(ctx, stakerA)
	if err != nil {
		t.Fatalf("ClaimableYield() failed: %v", err)
	}
	assertAmountEqual(t, claimable, "40")

	if err := svc.RecordYieldClaim(ctx, stakerA, amount.New(40), common.HexToHash("0x02")); err != nil {
		t.Fatalf("RecordYieldClaim() failed: %v", err)
	}

	got, err := svc.StakeOf(ctx, stakerA)
	if err != nil {
		t.Fatalf("StakeOf() failed: %v", err)
	}
	assertAmountEqual(t, got.PendingYield, "0")
	assertAmountEqual(t, got.ClaimedYield, "40")

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalYieldDistributed, "40")
}

func TestService_RecordYieldClaim_NoActiveStakeIsNoOp(t *testing.T) {
	ctx, svc, store := setupService(t)

	if err := svc.RecordYieldClaim(ctx, stakerA, amount.New(40), common.HexToHash("0x01")); err != nil {
		t.Fatalf("expected benign no-op, got %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	assertAmountEqual(t, stats.TotalYieldDistributed, "0")
}

func TestService_DistributeYield_Proportional(t *testing.T) {
	ctx, svc, store := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(300), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if _, err := svc.RecordStake(ctx, stakerB, amount.New(700), common.HexToHash("0x02"), 11, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	if err := svc.DistributeYield(ctx, amount.New(100), "dist-1"); err != nil {
		t.Fatalf("DistributeYield() failed: %v", err)
	}

	claimA, err := svc.ClaimableYield(ctx, stakerA)
	if err != nil {
		t.Fatalf("ClaimableYield(A) failed: %v", err)
	}
	claimB, err := svc.ClaimableYield(ctx, stakerB)
	if err != nil {
		t.Fatalf("ClaimableYield(B) failed: %v", err)
	}
	assertAmountEqual(t, claimA, "30")
	assertAmountEqual(t, claimB, "70")

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	assertAmountEqual(t, stats.EndowmentLifetimeYield, "100")
	assertAmountEqual(t, stats.OperationalFunds, "0")
}

func TestService_DistributeYield_NoStakers(t *testing.T) {
	ctx, svc, store := setupService(t)

	if err := svc.DistributeYield(ctx, amount.New(500), "dist-1"); err != nil {
		t.Fatalf("DistributeYield() failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	assertAmountEqual(t, stats.OperationalFunds, "500")
	assertAmountEqual(t, stats.EndowmentLifetimeYield, "500")
}

func TestService_DistributeYield_RedeliveryIsConflict(t *testing.T) {
	ctx, svc, _ := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(100), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if err := svc.DistributeYield(ctx, amount.New(50), "dist-1"); err != nil {
		t.Fatalf("DistributeYield() failed: %v", err)
	}

	err := svc.DistributeYield(ctx, amount.New(50), "dist-1")
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected conflict on redelivered distribution, got %v", err)
	}

	// State is exactly as after the first application.
	claimable, err := svc.ClaimableYield(ctx, stakerA)
	if err != nil {
		t.Fatalf("ClaimableYield() failed: %v", err)
	}
	assertAmountEqual(t, claimable, "50")
}

func TestService_Stakers_ShareOfTreasury(t *testing.T) {
	ctx, svc, _ := setupService(t)

	if _, err := svc.RecordStake(ctx, stakerA, amount.New(250), common.HexToHash("0x01"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if _, err := svc.RecordStake(ctx, stakerB, amount.New(750), common.HexToHash("0x02"), 11, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	shares, total, err := svc.Stakers(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Stakers() failed: %v", err)
	}
	if total != 2 || len(shares) != 2 {
		t.Fatalf("unexpected staker count: total %d len %d", total, len(shares))
	}
	// Largest first.
	assertAmountEqual(t, shares[0].Amount, "750")
	assertAmountEqual(t, shares[0].ShareOfTreasuryBps, "7500")
	assertAmountEqual(t, shares[1].ShareOfTreasuryBps, "2500")
}

func TestService_DistributionDustBound(t *testing.T) {
	ctx, svc, store := setupService(t)

	// Three equal stakes and a yield that does not divide evenly.
	for i, staker := range []common.Address{
		stakerA,
		stakerB,
		common.HexToAddress("0x000000000000000000000000000000000000ccc3"),
	} {
		if _, err := svc.RecordStake(ctx, staker, amount.New(100), common.HexToHash(fmt.Sprintf("0x0%d", i+1)), 10, 84532); err != nil {
			t.Fatalf("RecordStake() failed: %v", err)
		}
	}

	if err := svc.DistributeYield(ctx, amount.New(100), "dist-1"); err != nil {
		t.Fatalf("DistributeYield() failed: %v", err)
	}

	dists := store.Distributions()
	dist := dists["dist-1"]
	if dist == nil {
		t.Fatalf("expected distribution record")
	}
	assertAmountEqual(t, dist.Distributed, "99")
	assertAmountEqual(t, dist.Dust, "1")
	if dist.StakerCount != 3 {
		t.Fatalf("unexpected staker count: %d", dist.StakerCount)
	}
}

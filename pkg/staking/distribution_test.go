package staking

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

func stakeOf(id int64, amt uint64) *Stake {
	return &Stake{
		ID:       id,
		Staker:   common.BigToAddress(common.Big1),
		Amount:   amount.New(amt),
		IsActive: true,
	}
}

func TestPlanDistributionProportional(t *testing.T) {
	// Two active stakes of 300 and 700; distributing 100 yields 30 and 70.
	stakes := []*Stake{stakeOf(1, 300), stakeOf(2, 700)}

	plan, err := PlanDistribution(amount.New(100), stakes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(plan.Shares))
	}
	if plan.Shares[0].Amount.String() != "30" {
		t.Errorf("stake 1 share = %s, want 30", plan.Shares[0].Amount)
	}
	if plan.Shares[1].Amount.String() != "70" {
		t.Errorf("stake 2 share = %s, want 70", plan.Shares[1].Amount)
	}
	if plan.Distributed.String() != "100" {
		t.Errorf("distributed = %s, want 100", plan.Distributed)
	}
	if !plan.Dust.IsZero() {
		t.Errorf("dust = %s, want 0", plan.Dust)
	}
}

func TestPlanDistributionRoundsDown(t *testing.T) {
	// 100 across three equal stakes: each gets floor(100/3)=33, dust 1.
	stakes := []*Stake{stakeOf(1, 1), stakeOf(2, 1), stakeOf(3, 1)}

	plan, err := PlanDistribution(amount.New(100), stakes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, sh := range plan.Shares {
		if sh.Amount.String() != "33" {
			t.Errorf("share %d = %s, want 33", i, sh.Amount)
		}
	}
	if plan.Dust.String() != "1" {
		t.Errorf("dust = %s, want 1", plan.Dust)
	}
}

func TestPlanDistributionNoStakers(t *testing.T) {
	plan, err := PlanDistribution(amount.New(500), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Shares) != 0 {
		t.Fatalf("expected no shares, got %d", len(plan.Shares))
	}
	if !plan.TotalStaked.IsZero() {
		t.Errorf("total staked = %s, want 0", plan.TotalStaked)
	}
	if plan.Dust.String() != "500" {
		t.Errorf("dust = %s, want 500", plan.Dust)
	}
}

func TestPlanDistributionDustBound(t *testing.T) {
	// Property check over random stake sets: sum(shares) <= yield and
	// yield - sum(shares) < number of stakers.
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(20)
		stakes := make([]*Stake, n)
		for i := range stakes {
			stakes[i] = stakeOf(int64(i+1), 1+uint64(rng.Intn(1_000_000)))
		}
		yield := amount.New(uint64(rng.Intn(10_000_000)))

		plan, err := PlanDistribution(yield, stakes)
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", round, err)
		}

		if plan.Distributed.Cmp(yield) > 0 {
			t.Fatalf("round %d: distributed %s exceeds yield %s", round, plan.Distributed, yield)
		}
		if plan.Dust.Cmp(amount.New(uint64(n))) >= 0 {
			t.Fatalf("round %d: dust %s not bounded by staker count %d", round, plan.Dust, n)
		}
		if amount.Sum(plan.Distributed, plan.Dust).Cmp(yield) != 0 {
			t.Fatalf("round %d: distributed %s + dust %s != yield %s", round, plan.Distributed, plan.Dust, yield)
		}
	}
}

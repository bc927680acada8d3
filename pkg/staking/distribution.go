package staking

import (
	"fmt"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

// Share is one staker's cut of a distribution.
type Share struct {
	StakeID int64
	Amount  amount.Amount
}

// DistributionPlan is the pure result of splitting a yield amount across the
// active stakes. Distributed + Dust == YieldAmount always holds.
type DistributionPlan struct {
	YieldAmount amount.Amount
	TotalStaked amount.Amount
	Shares      []Share
	Distributed amount.Amount
	Dust        amount.Amount
}

// PlanDistribution splits yieldAmount proportionally across stakes:
// each share is floor(yieldAmount × stake.Amount / totalStaked). Rounding is
// deterministic and always down; the summed remainder (dust) is bounded by
// the number of stakers and is intentionally not reallocated.
func PlanDistribution(yieldAmount amount.Amount, stakes []*Stake) (*DistributionPlan, error) {
	totalStaked := amount.Zero()
	for _, s := range stakes {
		totalStaked = totalStaked.Add(s.Amount)
	}

	plan := &DistributionPlan{
		YieldAmount: yieldAmount,
		TotalStaked: totalStaked,
		Distributed: amount.Zero(),
	}
	if totalStaked.IsZero() {
		plan.Dust = yieldAmount
		return plan, nil
	}

	for _, s := range stakes {
		share, err := yieldAmount.MulDiv(s.Amount, totalStaked)
		if err != nil {
			return nil, fmt.Errorf("share for stake %d: %w", s.ID, err)
		}
		plan.Shares = append(plan.Shares, Share{StakeID: s.ID, Amount: share})
		plan.Distributed = plan.Distributed.Add(share)
	}

	dust, err := yieldAmount.Sub(plan.Distributed)
	if err != nil {
		// Unreachable: each floor(yieldAmount × a_i / total) sums to at most yieldAmount.
		return nil, fmt.Errorf("distributed more than yield: %w", err)
	}
	plan.Dust = dust
	return plan, nil
}

// Package treasury defines the domain model for the platform fee ledger.
package treasury

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

// FeeSource identifies which platform contract produced a fee.
// This is the single canonical representation; persistence and wire
// conversions happen only at the store boundary.
type FeeSource int

const (
	FeeSourceOther FeeSource = iota
	FeeSourceStakingPool
	FeeSourceImpactDAOPool
	FeeSourceWealthBuilding
	FeeSourceFundraiser
)

func (s FeeSource) String() string {
	switch s {
	case FeeSourceStakingPool:
		return "STAKING_POOL"
	case FeeSourceImpactDAOPool:
		return "IMPACT_DAO_POOL"
	case FeeSourceWealthBuilding:
		return "WEALTH_BUILDING"
	case FeeSourceFundraiser:
		return "FUNDRAISER"
	default:
		return "OTHER"
	}
}

// ParseFeeSource converts a wire string into a FeeSource.
func ParseFeeSource(s string) (FeeSource, error) {
	switch s {
	case "STAKING_POOL":
		return FeeSourceStakingPool, nil
	case "IMPACT_DAO_POOL":
		return FeeSourceImpactDAOPool, nil
	case "WEALTH_BUILDING":
		return FeeSourceWealthBuilding, nil
	case "FUNDRAISER":
		return FeeSourceFundraiser, nil
	case "OTHER":
		return FeeSourceOther, nil
	default:
		return FeeSourceOther, fmt.Errorf("unknown fee source %q", s)
	}
}

// Stats holds the running treasury totals. It is a singleton row in the
// ledger store, lazily created on first use, and only ever mutated inside
// the store's atomic units of work.
type Stats struct {
	TotalFeesCollected     amount.Amount
	TotalFeesStaked        amount.Amount
	PendingFeesToStake     amount.Amount
	TotalYieldDistributed  amount.Amount
	OperationalFunds       amount.Amount
	EndowmentPrincipal     amount.Amount
	EndowmentLifetimeYield amount.Amount
	UpdatedAt              time.Time
}

// Fee is an immutable record of one inbound platform fee.
type Fee struct {
	ID            int64
	Source        common.Address
	SourceType    FeeSource
	Amount        amount.Amount
	TxHash        common.Hash
	ChainID       int64
	BlockNumber   int64
	IsStaked      bool
	StakingTxHash *common.Hash
	StakedAt      *time.Time
	CreatedAt     time.Time
}

// OperationalShareBps is the share of each staked fee batch routed to
// operational funds, in basis points. The integer-division remainder stays
// staked but unallocated.
const OperationalShareBps = 7800

// BpsDenominator is the basis point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// OperationalShare returns floor(total × 78 / 100).
func OperationalShare(total amount.Amount) amount.Amount {
	share, err := total.MulDiv(amount.New(OperationalShareBps), amount.New(BpsDenominator))
	if err != nil {
		// BpsDenominator is a non-zero constant.
		panic(err)
	}
	return share
}

// Package governance defines the DAO proposal domain model and the pure
// voting power arithmetic.
package governance

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

// ProposalStatus is the proposal lifecycle state. Status only moves forward:
// DRAFT → ACTIVE → {PASSED, REJECTED} → EXECUTED.
type ProposalStatus int

const (
	StatusDraft ProposalStatus = iota
	StatusActive
	StatusPassed
	StatusRejected
	StatusExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusDraft:
		return "DRAFT"
	case StatusActive:
		return "ACTIVE"
	case StatusPassed:
		return "PASSED"
	case StatusRejected:
		return "REJECTED"
	case StatusExecuted:
		return "EXECUTED"
	default:
		return fmt.Sprintf("ProposalStatus(%d)", int(s))
	}
}

// ParseProposalStatus converts a wire string into a ProposalStatus.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch s {
	case "DRAFT":
		return StatusDraft, nil
	case "ACTIVE":
		return StatusActive, nil
	case "PASSED":
		return StatusPassed, nil
	case "REJECTED":
		return StatusRejected, nil
	case "EXECUTED":
		return StatusExecuted, nil
	default:
		return StatusDraft, fmt.Errorf("unknown proposal status %q", s)
	}
}

// Closed reports whether the proposal has left the voting phase.
func (s ProposalStatus) Closed() bool {
	return s == StatusPassed || s == StatusRejected || s == StatusExecuted
}

// ProposalCategory classifies what a proposal commits the DAO to.
type ProposalCategory int

const (
	CategoryGeneral ProposalCategory = iota
	CategoryYieldDistribution
	CategoryTreasuryAllocation
	CategoryParameterChange
)

func (c ProposalCategory) String() string {
	switch c {
	case CategoryYieldDistribution:
		return "YIELD_DISTRIBUTION"
	case CategoryTreasuryAllocation:
		return "TREASURY_ALLOCATION"
	case CategoryParameterChange:
		return "PARAMETER_CHANGE"
	default:
		return "GENERAL"
	}
}

// ParseProposalCategory converts a wire string into a ProposalCategory.
func ParseProposalCategory(s string) (ProposalCategory, error) {
	switch s {
	case "GENERAL":
		return CategoryGeneral, nil
	case "YIELD_DISTRIBUTION":
		return CategoryYieldDistribution, nil
	case "TREASURY_ALLOCATION":
		return CategoryTreasuryAllocation, nil
	case "PARAMETER_CHANGE":
		return CategoryParameterChange, nil
	default:
		return CategoryGeneral, fmt.Errorf("unknown proposal category %q", s)
	}
}

// VoteChoice is the ballot cast by a voter.
type VoteChoice int

const (
	VoteFor VoteChoice = iota
	VoteAgainst
	VoteAbstain
)

func (c VoteChoice) String() string {
	switch c {
	case VoteAgainst:
		return "AGAINST"
	case VoteAbstain:
		return "ABSTAIN"
	default:
		return "FOR"
	}
}

// ParseVoteChoice converts a wire string into a VoteChoice.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch s {
	case "FOR":
		return VoteFor, nil
	case "AGAINST":
		return VoteAgainst, nil
	case "ABSTAIN":
		return VoteAbstain, nil
	default:
		return VoteFor, fmt.Errorf("unknown vote choice %q", s)
	}
}

// AllocationBpsLimit caps the summed allocation of a proposal's targets.
const AllocationBpsLimit = 10000

// Allocation routes a share of a passed proposal to one target.
type Allocation struct {
	TargetID      string
	AllocationBps int
}

// Proposal is one DAO governance proposal with its running vote tallies.
// Tallies are mutated only together with their vote rows, inside the store's
// atomic units of work.
type Proposal struct {
	ID              int64
	Title           string
	Description     string
	Category        ProposalCategory
	Proposer        common.Address
	VotingStartTime time.Time
	VotingEndTime   time.Time
	QuorumRequired  amount.Amount
	VotesFor        amount.Amount
	VotesAgainst    amount.Amount
	VotesAbstain    amount.Amount
	VotersCount     int
	Status          ProposalStatus
	Allocations     []Allocation
	ExecutionTxHash *common.Hash
	ExecutedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalVotes is the summed power across all three tallies.
func (p *Proposal) TotalVotes() amount.Amount {
	return amount.Sum(p.VotesFor, p.VotesAgainst, p.VotesAbstain)
}

// QuorumReached reports whether the total committed power meets the quorum.
// Abstain counts toward quorum but not toward passing.
func (p *Proposal) QuorumReached() bool {
	return p.TotalVotes().Cmp(p.QuorumRequired) >= 0
}

// IsPassing reports whether for strictly exceeds against.
func (p *Proposal) IsPassing() bool {
	return p.VotesFor.Cmp(p.VotesAgainst) > 0
}

// Outcome returns the terminal status a close evaluates to.
func (p *Proposal) Outcome() ProposalStatus {
	if !p.QuorumReached() || !p.IsPassing() {
		return StatusRejected
	}
	return StatusPassed
}

// VotingOpen reports whether the proposal accepts votes at the given time.
func (p *Proposal) VotingOpen(now time.Time) bool {
	return p.Status == StatusActive && now.Before(p.VotingEndTime)
}

// Vote is one immutable ballot. At most one exists per (proposal, voter).
type Vote struct {
	ID         int64
	ProposalID int64
	Voter      common.Address
	Choice     VoteChoice
	Power      amount.Amount
	Signature  string
	Message    string
	CreatedAt  time.Time
}

// Results is the outcome snapshot of one proposal.
type Results struct {
	ProposalID    int64
	Status        ProposalStatus
	VotesFor      amount.Amount
	VotesAgainst  amount.Amount
	VotesAbstain  amount.Amount
	TotalVotes    amount.Amount
	VotersCount   int
	QuorumReached bool
	IsPassing     bool
}

// Stats aggregates governance activity across all proposals.
type Stats struct {
	ProposalsByStatus map[ProposalStatus]int
	TotalProposals    int
	TotalVotes        int
	TotalPowerVoted   amount.Amount
}

// Package govstore persists the governance side of the engine: proposals,
// their allocations and tallies, immutable votes and the cached
// governance-token wallet balances that feed the voting power calculation.
package govstore

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/governance"
)

var (
	// ErrNotFound is returned when a lookup finds no matching record.
	ErrNotFound = errors.New("governance record not found")

	// ErrDuplicateVote is returned when a voter already voted on a proposal.
	ErrDuplicateVote = errors.New("voter already voted on proposal")
)

// Tx is one atomic unit of work against the governance store.
type Tx interface {
	// ProposalForUpdate loads a proposal with its allocations, locking the
	// row for the remainder of the unit of work. Returns ErrNotFound.
	ProposalForUpdate(ctx context.Context, id int64) (*governance.Proposal, error)
	// InsertProposal creates a proposal and its allocations.
	InsertProposal(ctx context.Context, p *governance.Proposal) error
	// UpdateProposal writes back tallies, status and execution stamps.
	UpdateProposal(ctx context.Context, p *governance.Proposal) error
	// InsertVote creates an immutable vote row. Returns ErrDuplicateVote if
	// the voter already voted on the proposal.
	InsertVote(ctx context.Context, v *governance.Vote) error
	// CommittedPower sums the voter's vote power on currently active
	// proposals, observed inside this unit of work.
	CommittedPower(ctx context.Context, voter common.Address) (amount.Amount, error)
	// WalletBalance returns the cached governance-token balance inside this
	// unit of work.
	WalletBalance(ctx context.Context, addr common.Address) (amount.Amount, error)
}

// ProposalQuery filters proposal listings.
type ProposalQuery struct {
	Status *governance.ProposalStatus
	Limit  int
	Offset int
}

// Reader is the read-only query surface of the governance store.
type Reader interface {
	// Proposal loads a proposal with its allocations, or ErrNotFound.
	Proposal(ctx context.Context, id int64) (*governance.Proposal, error)
	// Proposals lists proposals newest-first with the total match count.
	Proposals(ctx context.Context, q ProposalQuery) ([]*governance.Proposal, int, error)
	// ProposalVotes pages through a proposal's votes newest-first.
	ProposalVotes(ctx context.Context, proposalID int64, limit, offset int) ([]*governance.Vote, int, error)
	// VoterVotes pages through one voter's votes newest-first.
	VoterVotes(ctx context.Context, voter common.Address, limit, offset int) ([]*governance.Vote, int, error)
	// CommittedPower sums the voter's vote power on currently active
	// proposals.
	CommittedPower(ctx context.Context, voter common.Address) (amount.Amount, error)
	// WalletBalance returns the cached governance-token balance, zero when
	// the address has never been synced.
	WalletBalance(ctx context.Context, addr common.Address) (amount.Amount, error)
	// ExpiredActiveProposalIDs lists active proposals whose voting window
	// ended at or before now.
	ExpiredActiveProposalIDs(ctx context.Context, now time.Time) ([]int64, error)
	// VotingStats aggregates proposal counts by status and vote totals.
	VotingStats(ctx context.Context) (*governance.Stats, error)
}

// Store is the full governance persistence contract.
type Store interface {
	Reader
	// Atomic runs fn inside one database transaction.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// SetWalletBalance upserts the cached balance for an address. The write
	// is an absolute set, safe under redelivery.
	SetWalletBalance(ctx context.Context, addr common.Address, balance amount.Amount) error
}

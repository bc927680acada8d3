// Package govtest provides an in-memory governance store for service tests,
// with the same commit-or-discard transactional behavior as the postgres
// implementation.
package govtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/governance"
	"github.com/impactdao/treasury-engine/pkg/govstore"
)

type state struct {
	proposals      map[int64]*governance.Proposal
	votes          []*governance.Vote
	balances       map[string]amount.Amount
	nextProposalID int64
	nextVoteID     int64
}

func newState() *state {
	return &state{
		proposals:      make(map[int64]*governance.Proposal),
		balances:       make(map[string]amount.Amount),
		nextProposalID: 1,
		nextVoteID:     1,
	}
}

func cloneProposal(p *governance.Proposal) *governance.Proposal {
	c := *p
	c.Allocations = append([]governance.Allocation(nil), p.Allocations...)
	return &c
}

func (s *state) clone() *state {
	c := &state{
		proposals:      make(map[int64]*governance.Proposal, len(s.proposals)),
		votes:          make([]*governance.Vote, len(s.votes)),
		balances:       make(map[string]amount.Amount, len(s.balances)),
		nextProposalID: s.nextProposalID,
		nextVoteID:     s.nextVoteID,
	}
	for id, p := range s.proposals {
		c.proposals[id] = cloneProposal(p)
	}
	for i, v := range s.votes {
		vote := *v
		c.votes[i] = &vote
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// Store is an in-memory govstore.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ govstore.Store = (*Store)(nil)

// NewStore creates an empty in-memory governance store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx govstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &memTx{st: snapshot}); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

func (s *Store) SetWalletBalance(_ context.Context, addr common.Address, balance amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.balances[addr.Hex()] = balance
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) ProposalForUpdate(_ context.Context, id int64) (*governance.Proposal, error) {
	p, ok := t.st.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %d", govstore.ErrNotFound, id)
	}
	return cloneProposal(p), nil
}

func (t *memTx) InsertProposal(_ context.Context, p *governance.Proposal) error {
	p.ID = t.st.nextProposalID
	t.st.nextProposalID++
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	t.st.proposals[p.ID] = cloneProposal(p)
	return nil
}

func (t *memTx) UpdateProposal(_ context.Context, p *governance.Proposal) error {
	if _, ok := t.st.proposals[p.ID]; !ok {
		return fmt.Errorf("%w: proposal %d", govstore.ErrNotFound, p.ID)
	}
	c := cloneProposal(p)
	c.UpdatedAt = time.Now().UTC()
	t.st.proposals[p.ID] = c
	return nil
}

func (t *memTx) InsertVote(_ context.Context, v *governance.Vote) error {
	for _, existing := range t.st.votes {
		if existing.ProposalID == v.ProposalID && existing.Voter == v.Voter {
			return fmt.Errorf("%w: proposal %d voter %s", govstore.ErrDuplicateVote, v.ProposalID, v.Voter.Hex())
		}
	}
	v.ID = t.st.nextVoteID
	t.st.nextVoteID++
	v.CreatedAt = time.Now().UTC()
	c := *v
	t.st.votes = append(t.st.votes, &c)
	return nil
}

func (t *memTx) CommittedPower(_ context.Context, voter common.Address) (amount.Amount, error) {
	return committedPower(t.st, voter), nil
}

func (t *memTx) WalletBalance(_ context.Context, addr common.Address) (amount.Amount, error) {
	return t.st.balances[addr.Hex()], nil
}

func committedPower(st *state, voter common.Address) amount.Amount {
	committed := amount.Zero()
	for _, v := range st.votes {
		if v.Voter != voter {
			continue
		}
		p, ok := st.proposals[v.ProposalID]
		if ok && p.Status == governance.StatusActive {
			committed = committed.Add(v.Power)
		}
	}
	return committed
}

// Read-only surface over committed state.

func (s *Store) Proposal(_ context.Context, id int64) (*governance.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %d", govstore.ErrNotFound, id)
	}
	return cloneProposal(p), nil
}

func (s *Store) Proposals(_ context.Context, q govstore.ProposalQuery) ([]*governance.Proposal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*governance.Proposal
	for _, p := range s.st.proposals {
		if q.Status != nil && p.Status != *q.Status {
			continue
		}
		matched = append(matched, cloneProposal(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if q.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *Store) filterVotes(keep func(*governance.Vote) bool, limit, offset int) ([]*governance.Vote, int) {
	var matched []*governance.Vote
	for _, v := range s.st.votes {
		if keep(v) {
			c := *v
			matched = append(matched, &c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= len(matched) {
		return nil, total
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total
}

func (s *Store) ProposalVotes(_ context.Context, proposalID int64, limit, offset int) ([]*governance.Vote, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, total := s.filterVotes(func(v *governance.Vote) bool { return v.ProposalID == proposalID }, limit, offset)
	return votes, total, nil
}

func (s *Store) VoterVotes(_ context.Context, voter common.Address, limit, offset int) ([]*governance.Vote, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, total := s.filterVotes(func(v *governance.Vote) bool { return v.Voter == voter }, limit, offset)
	return votes, total, nil
}

func (s *Store) CommittedPower(_ context.Context, voter common.Address) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return committedPower(s.st, voter), nil
}

func (s *Store) WalletBalance(_ context.Context, addr common.Address) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st.balances[addr.Hex()], nil
}

func (s *Store) ExpiredActiveProposalIDs(_ context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, p := range s.st.proposals {
		if p.Status == governance.StatusActive && !p.VotingEndTime.After(now) {
			ids = append(ids, p.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) VotingStats(_ context.Context) (*governance.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &governance.Stats{
		ProposalsByStatus: make(map[governance.ProposalStatus]int),
		TotalPowerVoted:   amount.Zero(),
	}
	for _, p := range s.st.proposals {
		stats.ProposalsByStatus[p.Status]++
		stats.TotalProposals++
	}
	for _, v := range s.st.votes {
		stats.TotalVotes++
		stats.TotalPowerVoted = stats.TotalPowerVoted.Add(v.Power)
	}
	return stats, nil
}

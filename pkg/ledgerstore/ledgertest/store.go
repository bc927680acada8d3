// Package ledgertest provides an in-memory ledger store for service tests.
// Atomic units of work run against a snapshot that commits on success and is
// discarded on error, mirroring the transactional behavior of the postgres
// implementation.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

type state struct {
	stats         *treasury.Stats
	fees          []*treasury.Fee
	stakes        []*staking.Stake
	journal       map[string]ledgerstore.TxKind
	distributions map[string]*staking.Distribution
	nextFeeID     int64
	nextStakeID   int64
}

func newState() *state {
	return &state{
		journal:       make(map[string]ledgerstore.TxKind),
		distributions: make(map[string]*staking.Distribution),
		nextFeeID:     1,
		nextStakeID:   1,
	}
}

func (s *state) clone() *state {
	c := &state{
		fees:          make([]*treasury.Fee, len(s.fees)),
		stakes:        make([]*staking.Stake, len(s.stakes)),
		journal:       make(map[string]ledgerstore.TxKind, len(s.journal)),
		distributions: make(map[string]*staking.Distribution, len(s.distributions)),
		nextFeeID:     s.nextFeeID,
		nextStakeID:   s.nextStakeID,
	}
	if s.stats != nil {
		stats := *s.stats
		c.stats = &stats
	}
	for i, f := range s.fees {
		fee := *f
		c.fees[i] = &fee
	}
	for i, st := range s.stakes {
		stake := *st
		c.stakes[i] = &stake
	}
	for k, v := range s.journal {
		c.journal[k] = v
	}
	for k, v := range s.distributions {
		dist := *v
		c.distributions[k] = &dist
	}
	return c
}

// Store is an in-memory ledgerstore.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ ledgerstore.Store = (*Store)(nil)

// NewStore creates an empty in-memory ledger store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &memTx{st: snapshot}); err != nil {
		return err
	}
	s.st = snapshot
	return nil
}

// JournaledKinds returns the journal contents keyed by transaction hash.
func (s *Store) JournaledKinds() map[string]ledgerstore.TxKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ledgerstore.TxKind, len(s.st.journal))
	for k, v := range s.st.journal {
		out[k] = v
	}
	return out
}

// Distributions returns the recorded distributions keyed by id.
func (s *Store) Distributions() map[string]*staking.Distribution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*staking.Distribution, len(s.st.distributions))
	for k, v := range s.st.distributions {
		dist := *v
		out[k] = &dist
	}
	return out
}

type memTx struct {
	st *state
}

func (t *memTx) Stats(_ context.Context) (*treasury.Stats, error) {
	if t.st.stats == nil {
		t.st.stats = &treasury.Stats{}
	}
	stats := *t.st.stats
	return &stats, nil
}

func (t *memTx) PutStats(_ context.Context, stats *treasury.Stats) error {
	c := *stats
	c.UpdatedAt = time.Now().UTC()
	t.st.stats = &c
	return nil
}

func (t *memTx) Journal(_ context.Context, txHash common.Hash, kind ledgerstore.TxKind) error {
	key := txHash.Hex()
	if _, ok := t.st.journal[key]; ok {
		return fmt.Errorf("%w: %s", ledgerstore.ErrDuplicateTx, key)
	}
	t.st.journal[key] = kind
	return nil
}

func (t *memTx) InsertFee(_ context.Context, fee *treasury.Fee) error {
	for _, f := range t.st.fees {
		if f.TxHash == fee.TxHash {
			return fmt.Errorf("%w: fee %s", ledgerstore.ErrDuplicateTx, fee.TxHash.Hex())
		}
	}
	fee.ID = t.st.nextFeeID
	t.st.nextFeeID++
	fee.CreatedAt = time.Now().UTC()
	c := *fee
	t.st.fees = append(t.st.fees, &c)
	return nil
}

func (t *memTx) MarkPendingFeesStaked(_ context.Context, stakingTxHash common.Hash, at time.Time) (int64, error) {
	var marked int64
	for _, f := range t.st.fees {
		if f.IsStaked {
			continue
		}
		f.IsStaked = true
		h := stakingTxHash
		f.StakingTxHash = &h
		stakedAt := at
		f.StakedAt = &stakedAt
		marked++
	}
	return marked, nil
}

func (t *memTx) ActiveStake(_ context.Context, staker common.Address) (*staking.Stake, error) {
	for _, st := range t.st.stakes {
		if st.IsActive && st.Staker == staker {
			c := *st
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: active stake for %s", ledgerstore.ErrNotFound, staker.Hex())
}

func (t *memTx) ActiveStakes(_ context.Context) ([]*staking.Stake, error) {
	var out []*staking.Stake
	for _, st := range t.st.stakes {
		if st.IsActive {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertStake(_ context.Context, stake *staking.Stake) error {
	stake.ID = t.st.nextStakeID
	t.st.nextStakeID++
	stake.StakedAt = time.Now().UTC()
	stake.UpdatedAt = stake.StakedAt
	c := *stake
	t.st.stakes = append(t.st.stakes, &c)
	return nil
}

func (t *memTx) UpdateStake(_ context.Context, stake *staking.Stake) error {
	for i, st := range t.st.stakes {
		if st.ID == stake.ID {
			c := *stake
			c.UpdatedAt = time.Now().UTC()
			t.st.stakes[i] = &c
			return nil
		}
	}
	return fmt.Errorf("%w: stake %d", ledgerstore.ErrNotFound, stake.ID)
}

func (t *memTx) CreditPendingYield(_ context.Context, stakeID int64, share amount.Amount) error {
	for _, st := range t.st.stakes {
		if st.ID == stakeID {
			st.PendingYield = st.PendingYield.Add(share)
			st.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: stake %d", ledgerstore.ErrNotFound, stakeID)
}

func (t *memTx) InsertDistribution(_ context.Context, dist *staking.Distribution) error {
	if _, ok := t.st.distributions[dist.ID]; ok {
		return fmt.Errorf("%w: %s", ledgerstore.ErrDuplicateDistribution, dist.ID)
	}
	c := *dist
	c.CreatedAt = time.Now().UTC()
	t.st.distributions[dist.ID] = &c
	return nil
}

// Read-only surface over committed state.

func (s *Store) GetStats(_ context.Context) (*treasury.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.stats == nil {
		return &treasury.Stats{}, nil
	}
	stats := *s.st.stats
	return &stats, nil
}

func (s *Store) FeeHistory(_ context.Context, q ledgerstore.FeeQuery) ([]*treasury.Fee, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*treasury.Fee
	for _, f := range s.st.fees {
		if q.SourceType != nil && f.SourceType != *q.SourceType {
			continue
		}
		c := *f
		matched = append(matched, &c)
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

func (s *Store) ActiveStakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return (&memTx{st: s.st}).ActiveStake(ctx, staker)
}

func (s *Store) ListActiveStakes(_ context.Context, limit, offset int) ([]*staking.Stake, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*staking.Stake
	for _, st := range s.st.stakes {
		if st.IsActive {
			c := *st
			active = append(active, &c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if c := active[i].Amount.Cmp(active[j].Amount); c != 0 {
			return c > 0
		}
		return active[i].ID < active[j].ID
	})

	total := len(active)
	if offset >= len(active) {
		return nil, total, nil
	}
	active = active[offset:]
	if limit > 0 && limit < len(active) {
		active = active[:limit]
	}
	return active, total, nil
}

func (s *Store) TotalStaked(_ context.Context) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := amount.Zero()
	for _, st := range s.st.stakes {
		if st.IsActive {
			total = total.Add(st.Amount)
		}
	}
	return total, nil
}

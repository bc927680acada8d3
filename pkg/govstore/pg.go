package govstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/governance"
)

type pgStore struct {
	db *bun.DB
	ops
}

// NewStore creates a postgres implementation of the governance store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db, ops: ops{idb: db}}
}

func (s *pgStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &ops{idb: tx})
	})
}

func (s *pgStore) SetWalletBalance(ctx context.Context, addr common.Address, balance amount.Amount) error {
	dao := &GovBalanceDao{Address: addr.Hex(), Balance: balance}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set wallet balance: %w", err)
	}
	return nil
}

type ops struct {
	idb bun.IDB
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func (o *ops) loadProposal(ctx context.Context, id int64, forUpdate bool) (*governance.Proposal, error) {
	dao := new(ProposalDao)
	query := o.idb.NewSelect().Model(dao).Where("dp.id = ?", id)
	if forUpdate {
		query = query.For("UPDATE")
	}
	err := query.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %d: %w", id, err)
	}

	var allocations []AllocationDao
	err = o.idb.NewSelect().
		Model(&allocations).
		Where("proposal_id = ?", id).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations for proposal %d: %w", id, err)
	}
	return toProposal(dao, allocations)
}

func (o *ops) ProposalForUpdate(ctx context.Context, id int64) (*governance.Proposal, error) {
	return o.loadProposal(ctx, id, true)
}

func (o *ops) InsertProposal(ctx context.Context, p *governance.Proposal) error {
	dao := toProposalDao(p)
	_, err := o.idb.NewInsert().Model(dao).Returning("id, created_at, updated_at").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	p.ID = dao.ID
	p.CreatedAt = dao.CreatedAt
	p.UpdatedAt = dao.UpdatedAt

	if len(p.Allocations) == 0 {
		return nil
	}
	daos := make([]AllocationDao, len(p.Allocations))
	for i, a := range p.Allocations {
		daos[i] = AllocationDao{
			ProposalID:    p.ID,
			TargetID:      a.TargetID,
			AllocationBps: a.AllocationBps,
		}
	}
	if _, err := o.idb.NewInsert().Model(&daos).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert allocations: %w", err)
	}
	return nil
}

func (o *ops) UpdateProposal(ctx context.Context, p *governance.Proposal) error {
	dao := toProposalDao(p)
	_, err := o.idb.NewUpdate().
		Model(dao).
		WherePK().
		Set("votes_for = ?", dao.VotesFor).
		Set("votes_against = ?", dao.VotesAgainst).
		Set("votes_abstain = ?", dao.VotesAbstain).
		Set("voters_count = ?", dao.VotersCount).
		Set("status = ?", dao.Status).
		Set("execution_tx_hash = ?", dao.ExecutionTxHash).
		Set("executed_at = ?", dao.ExecutedAt).
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update proposal %d: %w", p.ID, err)
	}
	return nil
}

func (o *ops) InsertVote(ctx context.Context, v *governance.Vote) error {
	dao := toVoteDao(v)
	_, err := o.idb.NewInsert().Model(dao).Returning("id, created_at").Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: proposal %d voter %s", ErrDuplicateVote, v.ProposalID, v.Voter.Hex())
	}
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	v.ID = dao.ID
	v.CreatedAt = dao.CreatedAt
	return nil
}

// Read-only query surface.

func (o *ops) Proposal(ctx context.Context, id int64) (*governance.Proposal, error) {
	return o.loadProposal(ctx, id, false)
}

func (o *ops) Proposals(ctx context.Context, q ProposalQuery) ([]*governance.Proposal, int, error) {
	var daos []ProposalDao
	query := o.idb.NewSelect().Model(&daos)
	if q.Status != nil {
		query = query.Where("status = ?", q.Status.String())
	}
	total, err := query.
		Order("created_at DESC", "id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list proposals: %w", err)
	}

	proposals := make([]*governance.Proposal, len(daos))
	for i := range daos {
		var allocations []AllocationDao
		err := o.idb.NewSelect().
			Model(&allocations).
			Where("proposal_id = ?", daos[i].ID).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get allocations for proposal %d: %w", daos[i].ID, err)
		}
		proposals[i], err = toProposal(&daos[i], allocations)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode proposal %d: %w", daos[i].ID, err)
		}
	}
	return proposals, total, nil
}

func (o *ops) votes(ctx context.Context, where string, arg any, limit, offset int) ([]*governance.Vote, int, error) {
	var daos []VoteDao
	total, err := o.idb.NewSelect().
		Model(&daos).
		Where(where, arg).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list votes: %w", err)
	}
	votes := make([]*governance.Vote, len(daos))
	for i := range daos {
		vote, err := toVote(&daos[i])
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode vote %d: %w", daos[i].ID, err)
		}
		votes[i] = vote
	}
	return votes, total, nil
}

func (o *ops) ProposalVotes(ctx context.Context, proposalID int64, limit, offset int) ([]*governance.Vote, int, error) {
	return o.votes(ctx, "proposal_id = ?", proposalID, limit, offset)
}

func (o *ops) VoterVotes(ctx context.Context, voter common.Address, limit, offset int) ([]*governance.Vote, int, error) {
	return o.votes(ctx, "voter = ?", voter.Hex(), limit, offset)
}

func (o *ops) CommittedPower(ctx context.Context, voter common.Address) (amount.Amount, error) {
	var committed amount.Amount
	err := o.idb.NewSelect().
		Model((*VoteDao)(nil)).
		ColumnExpr("COALESCE(SUM(dv.power), 0)").
		Join("JOIN dao_proposals AS dp ON dp.id = dv.proposal_id").
		Where("dv.voter = ?", voter.Hex()).
		Where("dp.status = ?", governance.StatusActive.String()).
		Scan(ctx, &committed)
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to sum committed power: %w", err)
	}
	return committed, nil
}

func (o *ops) WalletBalance(ctx context.Context, addr common.Address) (amount.Amount, error) {
	dao := new(GovBalanceDao)
	err := o.idb.NewSelect().Model(dao).Where("address = ?", addr.Hex()).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return dao.Balance, nil
}

func (o *ops) ExpiredActiveProposalIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := o.idb.NewSelect().
		Model((*ProposalDao)(nil)).
		Column("id").
		Where("status = ?", governance.StatusActive.String()).
		Where("voting_end_time <= ?", now).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired proposals: %w", err)
	}
	return ids, nil
}

func (o *ops) VotingStats(ctx context.Context) (*governance.Stats, error) {
	var statusCounts []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := o.idb.NewSelect().
		Model((*ProposalDao)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &statusCounts)
	if err != nil {
		return nil, fmt.Errorf("failed to count proposals by status: %w", err)
	}

	stats := &governance.Stats{
		ProposalsByStatus: make(map[governance.ProposalStatus]int),
		TotalPowerVoted:   amount.Zero(),
	}
	for _, sc := range statusCounts {
		status, err := governance.ParseProposalStatus(sc.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to decode proposal status: %w", err)
		}
		stats.ProposalsByStatus[status] = sc.Count
		stats.TotalProposals += sc.Count
	}

	voteCount, err := o.idb.NewSelect().Model((*VoteDao)(nil)).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	stats.TotalVotes = voteCount

	var totalPower amount.Amount
	err = o.idb.NewSelect().
		Model((*VoteDao)(nil)).
		ColumnExpr("COALESCE(SUM(power), 0)").
		Scan(ctx, &totalPower)
	if err != nil {
		return nil, fmt.Errorf("failed to sum voted power: %w", err)
	}
	stats.TotalPowerVoted = totalPower
	return stats, nil
}

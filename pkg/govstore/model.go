package govstore

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/governance"
)

// ProposalDao is a data access object that maps directly to the
// 'dao_proposals' table in PostgreSQL.
type ProposalDao struct {
	bun.BaseModel   `bun:"table:dao_proposals,alias:dp"`
	ID              int64         `bun:"id,pk,autoincrement"`
	Title           string        `bun:"title,notnull,type:varchar(200)"`
	Description     string        `bun:"description,notnull,type:text"`
	Category        string        `bun:"category,notnull,type:varchar(32)"`
	Proposer        string        `bun:"proposer,notnull,type:varchar(42)"`
	VotingStartTime time.Time     `bun:"voting_start_time,notnull"`
	VotingEndTime   time.Time     `bun:"voting_end_time,notnull"`
	QuorumRequired  amount.Amount `bun:"quorum_required,notnull,type:numeric(78,0)"`
	VotesFor        amount.Amount `bun:"votes_for,notnull,type:numeric(78,0)"`
	VotesAgainst    amount.Amount `bun:"votes_against,notnull,type:numeric(78,0)"`
	VotesAbstain    amount.Amount `bun:"votes_abstain,notnull,type:numeric(78,0)"`
	VotersCount     int           `bun:"voters_count,notnull,default:0"`
	Status          string        `bun:"status,notnull,type:varchar(16)"`
	ExecutionTxHash *string       `bun:"execution_tx_hash,type:varchar(66)"`
	ExecutedAt      *time.Time    `bun:"executed_at"`
	CreatedAt       time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt       time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
}

// AllocationDao is a data access object that maps directly to the
// 'proposal_allocations' table in PostgreSQL.
type AllocationDao struct {
	bun.BaseModel `bun:"table:proposal_allocations,alias:pa"`
	ID            int64  `bun:"id,pk,autoincrement"`
	ProposalID    int64  `bun:"proposal_id,notnull"`
	TargetID      string `bun:"target_id,notnull,type:varchar(64)"`
	AllocationBps int    `bun:"allocation_bps,notnull"`
}

// VoteDao is a data access object that maps directly to the 'dao_votes'
// table in PostgreSQL. The (proposal_id, voter) pair is unique.
type VoteDao struct {
	bun.BaseModel `bun:"table:dao_votes,alias:dv"`
	ID            int64         `bun:"id,pk,autoincrement"`
	ProposalID    int64         `bun:"proposal_id,notnull,unique:uq_dao_votes_proposal_voter"`
	Voter         string        `bun:"voter,notnull,type:varchar(42),unique:uq_dao_votes_proposal_voter"`
	Choice        string        `bun:"choice,notnull,type:varchar(16)"`
	Power         amount.Amount `bun:"power,notnull,type:numeric(78,0)"`
	Signature     string        `bun:"signature,type:text"`
	Message       string        `bun:"message,type:text"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
}

// GovBalanceDao is a data access object that maps directly to the
// 'gov_balances' table in PostgreSQL: the cached governance-token wallet
// balance per address.
type GovBalanceDao struct {
	bun.BaseModel `bun:"table:gov_balances,alias:gb"`
	Address       string        `bun:"address,pk,type:varchar(42)"`
	Balance       amount.Amount `bun:"balance,notnull,type:numeric(78,0)"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toProposalDao(p *governance.Proposal) *ProposalDao {
	dao := &ProposalDao{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category.String(),
		Proposer:        p.Proposer.Hex(),
		VotingStartTime: p.VotingStartTime,
		VotingEndTime:   p.VotingEndTime,
		QuorumRequired:  p.QuorumRequired,
		VotesFor:        p.VotesFor,
		VotesAgainst:    p.VotesAgainst,
		VotesAbstain:    p.VotesAbstain,
		VotersCount:     p.VotersCount,
		Status:          p.Status.String(),
		ExecutedAt:      p.ExecutedAt,
	}
	if p.ExecutionTxHash != nil {
		h := p.ExecutionTxHash.Hex()
		dao.ExecutionTxHash = &h
	}
	return dao
}

func toProposal(dao *ProposalDao, allocations []AllocationDao) (*governance.Proposal, error) {
	status, err := governance.ParseProposalStatus(dao.Status)
	if err != nil {
		return nil, err
	}
	category, err := governance.ParseProposalCategory(dao.Category)
	if err != nil {
		return nil, err
	}

	p := &governance.Proposal{
		ID:              dao.ID,
		Title:           dao.Title,
		Description:     dao.Description,
		Category:        category,
		Proposer:        common.HexToAddress(dao.Proposer),
		VotingStartTime: dao.VotingStartTime,
		VotingEndTime:   dao.VotingEndTime,
		QuorumRequired:  dao.QuorumRequired,
		VotesFor:        dao.VotesFor,
		VotesAgainst:    dao.VotesAgainst,
		VotesAbstain:    dao.VotesAbstain,
		VotersCount:     dao.VotersCount,
		Status:          status,
		ExecutedAt:      dao.ExecutedAt,
		CreatedAt:       dao.CreatedAt,
		UpdatedAt:       dao.UpdatedAt,
	}
	if dao.ExecutionTxHash != nil {
		h := common.HexToHash(*dao.ExecutionTxHash)
		p.ExecutionTxHash = &h
	}
	for _, a := range allocations {
		p.Allocations = append(p.Allocations, governance.Allocation{
			TargetID:      a.TargetID,
			AllocationBps: a.AllocationBps,
		})
	}
	return p, nil
}

func toVoteDao(v *governance.Vote) *VoteDao {
	return &VoteDao{
		ID:         v.ID,
		ProposalID: v.ProposalID,
		Voter:      v.Voter.Hex(),
		Choice:     v.Choice.String(),
		Power:      v.Power,
		Signature:  v.Signature,
		Message:    v.Message,
	}
}

func toVote(dao *VoteDao) (*governance.Vote, error) {
	choice, err := governance.ParseVoteChoice(dao.Choice)
	if err != nil {
		return nil, err
	}
	return &governance.Vote{
		ID:         dao.ID,
		ProposalID: dao.ProposalID,
		Voter:      common.HexToAddress(dao.Voter),
		Choice:     choice,
		Power:      dao.Power,
		Signature:  dao.Signature,
		Message:    dao.Message,
		CreatedAt:  dao.CreatedAt,
	}, nil
}

package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/governance"
	govservice "github.com/impactdao/treasury-engine/pkg/governance/service"
	"github.com/impactdao/treasury-engine/pkg/staking"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

// page is the envelope of every paginated listing.
type page struct {
	Items   any  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

func newPage(items any, count, total, offset int) *page {
	return &page{
		Items:   items,
		Total:   total,
		HasMore: offset+count < total,
	}
}

type treasuryStatsResponse struct {
	TotalFeesCollected     amount.Amount `json:"total_fees_collected"`
	TotalFeesStaked        amount.Amount `json:"total_fees_staked"`
	PendingFeesToStake     amount.Amount `json:"pending_fees_to_stake"`
	TotalYieldDistributed  amount.Amount `json:"total_yield_distributed"`
	OperationalFunds       amount.Amount `json:"operational_funds"`
	EndowmentPrincipal     amount.Amount `json:"endowment_principal"`
	EndowmentLifetimeYield amount.Amount `json:"endowment_lifetime_yield"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

func toTreasuryStatsResponse(s *treasury.Stats) *treasuryStatsResponse {
	return &treasuryStatsResponse{
		TotalFeesCollected:     s.TotalFeesCollected,
		TotalFeesStaked:        s.TotalFeesStaked,
		PendingFeesToStake:     s.PendingFeesToStake,
		TotalYieldDistributed:  s.TotalYieldDistributed,
		OperationalFunds:       s.OperationalFunds,
		EndowmentPrincipal:     s.EndowmentPrincipal,
		EndowmentLifetimeYield: s.EndowmentLifetimeYield,
		UpdatedAt:              s.UpdatedAt,
	}
}

type feeResponse struct {
	ID          int64         `json:"id"`
	Source      string        `json:"source"`
	SourceType  string        `json:"source_type"`
	Amount      amount.Amount `json:"amount"`
	TxHash      string        `json:"tx_hash"`
	ChainID     int64         `json:"chain_id"`
	BlockNumber int64         `json:"block_number"`
	IsStaked    bool          `json:"is_staked"`
	StakedAt    *time.Time    `json:"staked_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toFeeResponse(f *treasury.Fee) *feeResponse {
	return &feeResponse{
		ID:          f.ID,
		Source:      f.Source.Hex(),
		SourceType:  f.SourceType.String(),
		Amount:      f.Amount,
		TxHash:      f.TxHash.Hex(),
		ChainID:     f.ChainID,
		BlockNumber: f.BlockNumber,
		IsStaked:    f.IsStaked,
		StakedAt:    f.StakedAt,
		CreatedAt:   f.CreatedAt,
	}
}

type stakeResponse struct {
	Staker         string        `json:"staker"`
	Amount         amount.Amount `json:"amount"`
	PendingYield   amount.Amount `json:"pending_yield"`
	ClaimedYield   amount.Amount `json:"claimed_yield"`
	LifetimeStaked amount.Amount `json:"lifetime_staked"`
	StakedAt       time.Time     `json:"staked_at"`
}

func toStakeResponse(s *staking.Stake) *stakeResponse {
	return &stakeResponse{
		Staker:         s.Staker.Hex(),
		Amount:         s.Amount,
		PendingYield:   s.PendingYield,
		ClaimedYield:   s.ClaimedYield,
		LifetimeStaked: s.LifetimeStaked,
		StakedAt:       s.StakedAt,
	}
}

type stakerShareResponse struct {
	stakeResponse
	ShareOfTreasuryBps amount.Amount `json:"share_of_treasury_bps"`
	SharePercent       string        `json:"share_percent"`
}

func toStakerShareResponse(s *staking.StakerShare) *stakerShareResponse {
	return &stakerShareResponse{
		stakeResponse:      *toStakeResponse(&s.Stake),
		ShareOfTreasuryBps: s.ShareOfTreasuryBps,
		SharePercent:       decimal.NewFromBigInt(s.ShareOfTreasuryBps.BigInt(), -2).String(),
	}
}

type claimableResponse struct {
	Staker    string        `json:"staker"`
	Claimable amount.Amount `json:"claimable"`
}

type allocationPayload struct {
	TargetID      string `json:"target_id" validate:"required"`
	AllocationBps int    `json:"allocation_bps" validate:"min=1,max=10000"`
}

type proposalResponse struct {
	ID              int64               `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Category        string              `json:"category"`
	Proposer        string              `json:"proposer"`
	Status          string              `json:"status"`
	VotingStartTime time.Time           `json:"voting_start_time"`
	VotingEndTime   time.Time           `json:"voting_end_time"`
	QuorumRequired  amount.Amount       `json:"quorum_required"`
	VotesFor        amount.Amount       `json:"votes_for"`
	VotesAgainst    amount.Amount       `json:"votes_against"`
	VotesAbstain    amount.Amount       `json:"votes_abstain"`
	VotersCount     int                 `json:"voters_count"`
	Allocations     []allocationPayload `json:"allocations,omitempty"`
	ExecutionTxHash string              `json:"execution_tx_hash,omitempty"`
	ExecutedAt      *time.Time          `json:"executed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func toProposalResponse(p *governance.Proposal) *proposalResponse {
	resp := &proposalResponse{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category.String(),
		Proposer:        p.Proposer.Hex(),
		Status:          p.Status.String(),
		VotingStartTime: p.VotingStartTime,
		VotingEndTime:   p.VotingEndTime,
		QuorumRequired:  p.QuorumRequired,
		VotesFor:        p.VotesFor,
		VotesAgainst:    p.VotesAgainst,
		VotesAbstain:    p.VotesAbstain,
		VotersCount:     p.VotersCount,
		ExecutedAt:      p.ExecutedAt,
		CreatedAt:       p.CreatedAt,
	}
	for _, a := range p.Allocations {
		resp.Allocations = append(resp.Allocations, allocationPayload{
			TargetID:      a.TargetID,
			AllocationBps: a.AllocationBps,
		})
	}
	if p.ExecutionTxHash != nil {
		resp.ExecutionTxHash = p.ExecutionTxHash.Hex()
	}
	return resp
}

type voteResponse struct {
	ID         int64         `json:"id"`
	ProposalID int64         `json:"proposal_id"`
	Voter      string        `json:"voter"`
	Choice     string        `json:"choice"`
	Power      amount.Amount `json:"power"`
	CreatedAt  time.Time     `json:"created_at"`
}

func toVoteResponse(v *governance.Vote) *voteResponse {
	return &voteResponse{
		ID:         v.ID,
		ProposalID: v.ProposalID,
		Voter:      v.Voter.Hex(),
		Choice:     v.Choice.String(),
		Power:      v.Power,
		CreatedAt:  v.CreatedAt,
	}
}

type resultsResponse struct {
	ProposalID    int64         `json:"proposal_id"`
	Status        string        `json:"status"`
	VotesFor      amount.Amount `json:"votes_for"`
	VotesAgainst  amount.Amount `json:"votes_against"`
	VotesAbstain  amount.Amount `json:"votes_abstain"`
	TotalVotes    amount.Amount `json:"total_votes"`
	VotersCount   int           `json:"voters_count"`
	QuorumReached bool          `json:"quorum_reached"`
	IsPassing     bool          `json:"is_passing"`
}

func toResultsResponse(res *governance.Results) *resultsResponse {
	return &resultsResponse{
		ProposalID:    res.ProposalID,
		Status:        res.Status.String(),
		VotesFor:      res.VotesFor,
		VotesAgainst:  res.VotesAgainst,
		VotesAbstain:  res.VotesAbstain,
		TotalVotes:    res.TotalVotes,
		VotersCount:   res.VotersCount,
		QuorumReached: res.QuorumReached,
		IsPassing:     res.IsPassing,
	}
}

type powerResponse struct {
	Voter     string        `json:"voter"`
	Wallet    amount.Amount `json:"wallet"`
	Staked    amount.Amount `json:"staked"`
	Total     amount.Amount `json:"total"`
	Committed amount.Amount `json:"committed"`
	Available amount.Amount `json:"available"`
}

func toPowerResponse(voter string, p *govservice.VoterPower) *powerResponse {
	return &powerResponse{
		Voter:     voter,
		Wallet:    p.Wallet,
		Staked:    p.Staked,
		Total:     p.Total,
		Committed: p.Committed,
		Available: p.Available,
	}
}

type governanceStatsResponse struct {
	ProposalsByStatus map[string]int `json:"proposals_by_status"`
	TotalProposals    int            `json:"total_proposals"`
	TotalVotes        int            `json:"total_votes"`
	TotalPowerVoted   amount.Amount  `json:"total_power_voted"`
}

func toGovernanceStatsResponse(s *governance.Stats) *governanceStatsResponse {
	byStatus := make(map[string]int, len(s.ProposalsByStatus))
	for status, n := range s.ProposalsByStatus {
		byStatus[status.String()] = n
	}
	return &governanceStatsResponse{
		ProposalsByStatus: byStatus,
		TotalProposals:    s.TotalProposals,
		TotalVotes:        s.TotalVotes,
		TotalPowerVoted:   s.TotalPowerVoted,
	}
}

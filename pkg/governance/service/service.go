// Package service implements the proposal engine: creation, voting,
// quorum/outcome determination and execution, on top of the governance
// store's atomic units of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/internal/metrics"
	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/config"
	"github.com/impactdao/treasury-engine/pkg/governance"
	"github.com/impactdao/treasury-engine/pkg/govstore"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/notifier"
	"github.com/impactdao/treasury-engine/pkg/staking"
)

// StakeReader is the narrow view of the ledger the proposal engine needs:
// a voter's currently staked balance.
type StakeReader interface {
	ActiveStakeOf(ctx context.Context, staker common.Address) (*staking.Stake, error)
}

// CreateProposalRequest carries the payload for a new proposal.
type CreateProposalRequest struct {
	Title               string `validate:"required,min=3,max=200"`
	Description         string `validate:"required"`
	Category            governance.ProposalCategory
	Proposer            common.Address
	VotingDurationHours int
	QuorumRequired      amount.Amount
	Allocations         []governance.Allocation
}

// VoterPower is the read-time voting power breakdown for one voter.
type VoterPower struct {
	Wallet    amount.Amount
	Staked    amount.Amount
	Total     amount.Amount
	Committed amount.Amount
	Available amount.Amount
}

// Service defines the proposal engine operations.
type Service interface {
	// CreateProposal validates the payload and creates an active proposal
	// with the voting window starting now.
	CreateProposal(ctx context.Context, req *CreateProposalRequest) (*governance.Proposal, error)

	// CastVote records one ballot. Fails on a closed or expired proposal, a
	// repeat voter, or power exceeding the voter's available voting power.
	// The vote row and the tally update commit together.
	CastVote(ctx context.Context, voter common.Address, proposalID int64, choice governance.VoteChoice, power amount.Amount, signature, message string) (*governance.Vote, error)

	// CloseProposal evaluates quorum and outcome for an active proposal.
	// Closing an already-closed proposal is rejected without re-evaluation.
	CloseProposal(ctx context.Context, proposalID int64) (*governance.Proposal, error)

	// ExecuteYieldDistribution marks a passed yield-distribution proposal
	// executed, stamping the execution transaction hash and time.
	ExecuteYieldDistribution(ctx context.Context, proposalID int64, executionTxHash common.Hash) (*governance.Proposal, error)

	// SyncWalletBalance upserts the cached governance-token balance used as
	// the wallet input of voting power.
	SyncWalletBalance(ctx context.Context, addr common.Address, balance amount.Amount) error

	// Proposal returns one proposal with its allocations.
	Proposal(ctx context.Context, id int64) (*governance.Proposal, error)
	// Proposals lists proposals newest-first.
	Proposals(ctx context.Context, q govstore.ProposalQuery) ([]*governance.Proposal, int, error)
	// ProposalVotes pages through a proposal's votes.
	ProposalVotes(ctx context.Context, proposalID int64, limit, offset int) ([]*governance.Vote, int, error)
	// VoterVotes pages through one voter's votes.
	VoterVotes(ctx context.Context, voter common.Address, limit, offset int) ([]*governance.Vote, int, error)
	// ProposalResults returns the tally snapshot for one proposal.
	ProposalResults(ctx context.Context, proposalID int64) (*governance.Results, error)
	// VotingPowerOf computes the voter's current power breakdown.
	VotingPowerOf(ctx context.Context, voter common.Address) (*VoterPower, error)
	// VotingStats aggregates governance activity.
	VotingStats(ctx context.Context) (*governance.Stats, error)
}

type governanceService struct {
	store    govstore.Store
	stakes   StakeReader
	notifier notifier.Notifier
	cfg      *config.GovernanceConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a new proposal engine service
func NewService(store govstore.Store, stakes StakeReader, n notifier.Notifier, cfg *config.GovernanceConfig, logger *zap.Logger) Service {
	return &governanceService{
		store:    store,
		stakes:   stakes,
		notifier: n,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *governanceService) CreateProposal(ctx context.Context, req *CreateProposalRequest) (*governance.Proposal, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "invalid proposal payload")
	}
	if req.VotingDurationHours < s.cfg.MinVotingDurationHours || req.VotingDurationHours > s.cfg.MaxVotingDurationHours {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("voting duration must be between %d and %d hours", s.cfg.MinVotingDurationHours, s.cfg.MaxVotingDurationHours))
	}
	bpsSum := 0
	for _, a := range req.Allocations {
		if a.AllocationBps < 0 {
			return nil, apperrors.BadRequestError(nil, "allocation bps must not be negative")
		}
		bpsSum += a.AllocationBps
	}
	if bpsSum > governance.AllocationBpsLimit {
		return nil, apperrors.BadRequestError(nil, "allocation bps exceed 10000")
	}

	now := time.Now().UTC()
	p := &governance.Proposal{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Proposer:        req.Proposer,
		VotingStartTime: now,
		VotingEndTime:   now.Add(time.Duration(req.VotingDurationHours) * time.Hour),
		QuorumRequired:  req.QuorumRequired,
		Status:          governance.StatusActive,
		Allocations:     req.Allocations,
	}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx govstore.Tx) error {
		return tx.InsertProposal(ctx, p)
	})
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to create proposal: %w", err))
	}

	s.logger.Info("created proposal",
		zap.Int64("proposal_id", p.ID),
		zap.String("category", p.Category.String()),
		zap.String("proposer", p.Proposer.Hex()),
		zap.Time("voting_end_time", p.VotingEndTime))
	metrics.ProposalsTotal.WithLabelValues(p.Status.String()).Inc()
	s.notifier.ProposalCreated(ctx, p)
	return p, nil
}

func (s *governanceService) stakedBalance(ctx context.Context, voter common.Address) (amount.Amount, error) {
	stake, err := s.stakes.ActiveStakeOf(ctx, voter)
	if errors.Is(err, ledgerstore.ErrNotFound) {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), err
	}
	return stake.Amount, nil
}

func (s *governanceService) CastVote(ctx context.Context, voter common.Address, proposalID int64, choice governance.VoteChoice, power amount.Amount, signature, message string) (*governance.Vote, error) {
	staked, err := s.stakedBalance(ctx, voter)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to read staked balance: %w", err))
	}

	vote := &governance.Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Choice:     choice,
		Power:      power,
		Signature:  signature,
		Message:    message,
	}
	var proposal *governance.Proposal
	err = s.store.Atomic(ctx, func(ctx context.Context, tx govstore.Tx) error {
		p, err := tx.ProposalForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if !p.VotingOpen(now) {
			return apperrors.InvalidStateError(nil,
				fmt.Sprintf("proposal %d is not open for voting", proposalID))
		}

		wallet, err := tx.WalletBalance(ctx, voter)
		if err != nil {
			return err
		}
		committed, err := tx.CommittedPower(ctx, voter)
		if err != nil {
			return err
		}
		available := governance.AvailableVotingPower(wallet, staked, committed)
		if power.Cmp(available) > 0 {
			return apperrors.ForbiddenError(nil,
				fmt.Sprintf("requested power %s exceeds available %s", power.String(), available.String()))
		}

		if err := tx.InsertVote(ctx, vote); err != nil {
			return err
		}
		switch choice {
		case governance.VoteAgainst:
			p.VotesAgainst = p.VotesAgainst.Add(power)
		case governance.VoteAbstain:
			p.VotesAbstain = p.VotesAbstain.Add(power)
		default:
			p.VotesFor = p.VotesFor.Add(power)
		}
		p.VotersCount++
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if errors.Is(err, govstore.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "proposal not found")
	}
	if errors.Is(err, govstore.ErrDuplicateVote) {
		return nil, apperrors.ConflictError(err, "voter already voted on this proposal")
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to cast vote: %w", err))
	}

	s.logger.Info("cast vote",
		zap.Int64("proposal_id", proposalID),
		zap.String("voter", voter.Hex()),
		zap.String("choice", choice.String()),
		zap.String("power", power.String()))
	metrics.VotesCast.WithLabelValues(choice.String()).Inc()
	s.notifier.VoteCast(ctx, proposal, vote)
	return vote, nil
}

func (s *governanceService) CloseProposal(ctx context.Context, proposalID int64) (*governance.Proposal, error) {
	var proposal *governance.Proposal
	err := s.store.Atomic(ctx, func(ctx context.Context, tx govstore.Tx) error {
		p, err := tx.ProposalForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != governance.StatusActive {
			// Guarded no-re-evaluation: the first close decided the outcome.
			return apperrors.InvalidStateError(nil,
				fmt.Sprintf("proposal %d is already %s", proposalID, p.Status))
		}
		p.Status = p.Outcome()
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if errors.Is(err, govstore.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "proposal not found")
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to close proposal: %w", err))
	}

	s.logger.Info("closed proposal",
		zap.Int64("proposal_id", proposalID),
		zap.String("status", proposal.Status.String()),
		zap.String("votes_for", proposal.VotesFor.String()),
		zap.String("votes_against", proposal.VotesAgainst.String()),
		zap.String("votes_abstain", proposal.VotesAbstain.String()))
	metrics.ProposalsTotal.WithLabelValues(proposal.Status.String()).Inc()
	s.notifier.ProposalStatusChanged(ctx, proposal, governance.StatusActive)
	return proposal, nil
}

func (s *governanceService) ExecuteYieldDistribution(ctx context.Context, proposalID int64, executionTxHash common.Hash) (*governance.Proposal, error) {
	var proposal *governance.Proposal
	err := s.store.Atomic(ctx, func(ctx context.Context, tx govstore.Tx) error {
		p, err := tx.ProposalForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != governance.StatusPassed {
			return apperrors.InvalidStateError(nil,
				fmt.Sprintf("proposal %d is %s, execution requires PASSED", proposalID, p.Status))
		}
		if p.Category != governance.CategoryYieldDistribution {
			return apperrors.InvalidStateError(nil,
				fmt.Sprintf("proposal %d has category %s, execution requires YIELD_DISTRIBUTION", proposalID, p.Category))
		}
		now := time.Now().UTC()
		p.Status = governance.StatusExecuted
		p.ExecutionTxHash = &executionTxHash
		p.ExecutedAt = &now
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return err
		}
		proposal = p
		return nil
	})
	if errors.Is(err, govstore.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "proposal not found")
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to execute proposal: %w", err))
	}

	s.logger.Info("executed proposal",
		zap.Int64("proposal_id", proposalID),
		zap.String("execution_tx_hash", executionTxHash.Hex()))
	metrics.ProposalsTotal.WithLabelValues(proposal.Status.String()).Inc()
	s.notifier.ProposalStatusChanged(ctx, proposal, governance.StatusPassed)
	return proposal, nil
}

func (s *governanceService) SyncWalletBalance(ctx context.Context, addr common.Address, balance amount.Amount) error {
	if err := s.store.SetWalletBalance(ctx, addr, balance); err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to sync wallet balance: %w", err))
	}
	return nil
}

func (s *governanceService) Proposal(ctx context.Context, id int64) (*governance.Proposal, error) {
	p, err := s.store.Proposal(ctx, id)
	if errors.Is(err, govstore.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "proposal not found")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to get proposal: %w", err))
	}
	return p, nil
}

func (s *governanceService) Proposals(ctx context.Context, q govstore.ProposalQuery) ([]*governance.Proposal, int, error) {
	proposals, total, err := s.store.Proposals(ctx, q)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to list proposals: %w", err))
	}
	return proposals, total, nil
}

func (s *governanceService) ProposalVotes(ctx context.Context, proposalID int64, limit, offset int) ([]*governance.Vote, int, error) {
	votes, total, err := s.store.ProposalVotes(ctx, proposalID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to list proposal votes: %w", err))
	}
	return votes, total, nil
}

func (s *governanceService) VoterVotes(ctx context.Context, voter common.Address, limit, offset int) ([]*governance.Vote, int, error) {
	votes, total, err := s.store.VoterVotes(ctx, voter, limit, offset)
	if err != nil {
		return nil, 0, apperrors.GeneralError(fmt.Errorf("failed to list voter votes: %w", err))
	}
	return votes, total, nil
}

func (s *governanceService) ProposalResults(ctx context.Context, proposalID int64) (*governance.Results, error) {
	p, err := s.Proposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return &governance.Results{
		ProposalID:    p.ID,
		Status:        p.Status,
		VotesFor:      p.VotesFor,
		VotesAgainst:  p.VotesAgainst,
		VotesAbstain:  p.VotesAbstain,
		TotalVotes:    p.TotalVotes(),
		VotersCount:   p.VotersCount,
		QuorumReached: p.QuorumReached(),
		IsPassing:     p.IsPassing(),
	}, nil
}

func (s *governanceService) VotingPowerOf(ctx context.Context, voter common.Address) (*VoterPower, error) {
	wallet, err := s.store.WalletBalance(ctx, voter)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to read wallet balance: %w", err))
	}
	staked, err := s.stakedBalance(ctx, voter)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to read staked balance: %w", err))
	}
	committed, err := s.store.CommittedPower(ctx, voter)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to read committed power: %w", err))
	}
	return &VoterPower{
		Wallet:    wallet,
		Staked:    staked,
		Total:     governance.VotingPower(wallet, staked),
		Committed: committed,
		Available: governance.AvailableVotingPower(wallet, staked, committed),
	}, nil
}

func (s *governanceService) VotingStats(ctx context.Context) (*governance.Stats, error) {
	stats, err := s.store.VotingStats(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to get voting stats: %w", err))
	}
	return stats, nil
}

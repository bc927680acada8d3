package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
	"github.com/impactdao/treasury-engine/pkg/auth"
	"github.com/impactdao/treasury-engine/pkg/governance"
	govservice "github.com/impactdao/treasury-engine/pkg/governance/service"
	"github.com/impactdao/treasury-engine/pkg/govstore"
)

type createProposalPayload struct {
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	Category            string              `json:"category"`
	VotingDurationHours int                 `json:"voting_duration_hours"`
	QuorumRequired      amount.Amount       `json:"quorum_required"`
	Allocations         []allocationPayload `json:"allocations,omitempty"`
}

type castVotePayload struct {
	Choice    string        `json:"choice"`
	Power     amount.Amount `json:"power"`
	Signature string        `json:"signature,omitempty"`
	Message   string        `json:"message,omitempty"`
}

type executePayload struct {
	ExecutionTxHash string `json:"execution_tx_hash"`
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func voterFrom(r *http.Request) (common.Address, error) {
	voter, ok := auth.VoterFromContext(r.Context())
	if !ok {
		return common.Address{}, apperrors.UnAuthorizedError(nil, "missing bearer token")
	}
	return voter, nil
}

func (h *Handler) createProposal(w http.ResponseWriter, r *http.Request) error {
	proposer, err := voterFrom(r)
	if err != nil {
		return err
	}

	var payload createProposalPayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	category, err := governance.ParseProposalCategory(payload.Category)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid category")
	}

	req := &govservice.CreateProposalRequest{
		Title:               payload.Title,
		Description:         payload.Description,
		Category:            category,
		Proposer:            proposer,
		VotingDurationHours: payload.VotingDurationHours,
		QuorumRequired:      payload.QuorumRequired,
	}
	for _, a := range payload.Allocations {
		req.Allocations = append(req.Allocations, governance.Allocation{
			TargetID:      a.TargetID,
			AllocationBps: a.AllocationBps,
		})
	}

	proposal, err := h.governance.CreateProposal(r.Context(), req)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusCreated, toProposalResponse(proposal))
	return nil
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) error {
	voter, err := voterFrom(r)
	if err != nil {
		return err
	}
	id, err := parseID(r)
	if err != nil {
		return err
	}

	var payload castVotePayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}
	choice, err := governance.ParseVoteChoice(payload.Choice)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid vote choice")
	}

	vote, err := h.governance.CastVote(r.Context(), voter, id, choice, payload.Power, payload.Signature, payload.Message)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusCreated, toVoteResponse(vote))
	return nil
}

func (h *Handler) closeProposal(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}

	proposal, err := h.governance.CloseProposal(r.Context(), id)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toProposalResponse(proposal))
	return nil
}

func (h *Handler) executeProposal(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}

	var payload executePayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}
	if payload.ExecutionTxHash == "" {
		return apperrors.BadRequestError(nil, "execution_tx_hash required")
	}

	proposal, err := h.governance.ExecuteYieldDistribution(r.Context(), id, common.HexToHash(payload.ExecutionTxHash))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toProposalResponse(proposal))
	return nil
}

func (h *Handler) getProposal(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}

	proposal, err := h.governance.Proposal(r.Context(), id)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toProposalResponse(proposal))
	return nil
}

func (h *Handler) listProposals(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePage(r)
	if err != nil {
		return err
	}

	q := govstore.ProposalQuery{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := governance.ParseProposalStatus(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid status")
		}
		q.Status = &status
	}

	proposals, total, err := h.governance.Proposals(r.Context(), q)
	if err != nil {
		return err
	}

	items := make([]*proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		items = append(items, toProposalResponse(p))
	}
	apphttp.WriteJSON(w, http.StatusOK, newPage(items, len(items), total, offset))
	return nil
}

func (h *Handler) proposalVotes(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		return err
	}

	votes, total, err := h.governance.ProposalVotes(r.Context(), id, limit, offset)
	if err != nil {
		return err
	}

	items := make([]*voteResponse, 0, len(votes))
	for _, v := range votes {
		items = append(items, toVoteResponse(v))
	}
	apphttp.WriteJSON(w, http.StatusOK, newPage(items, len(items), total, offset))
	return nil
}

func (h *Handler) proposalResults(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}

	results, err := h.governance.ProposalResults(r.Context(), id)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toResultsResponse(results))
	return nil
}

func (h *Handler) voterVotes(w http.ResponseWriter, r *http.Request) error {
	voter, err := parseAddressParam(r, "addr")
	if err != nil {
		return err
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		return err
	}

	votes, total, err := h.governance.VoterVotes(r.Context(), voter, limit, offset)
	if err != nil {
		return err
	}

	items := make([]*voteResponse, 0, len(votes))
	for _, v := range votes {
		items = append(items, toVoteResponse(v))
	}
	apphttp.WriteJSON(w, http.StatusOK, newPage(items, len(items), total, offset))
	return nil
}

func (h *Handler) voterPower(w http.ResponseWriter, r *http.Request) error {
	voter, err := parseAddressParam(r, "addr")
	if err != nil {
		return err
	}

	power, err := h.governance.VotingPowerOf(r.Context(), voter)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toPowerResponse(voter.Hex(), power))
	return nil
}

func (h *Handler) votingStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.governance.VotingStats(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toGovernanceStatsResponse(stats))
	return nil
}

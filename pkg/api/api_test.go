package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/amount"
	"github.com/impactdao/treasury-engine/pkg/auth"
	"github.com/impactdao/treasury-engine/pkg/config"
	"github.com/impactdao/treasury-engine/pkg/governance"
	govservice "github.com/impactdao/treasury-engine/pkg/governance/service"
	"github.com/impactdao/treasury-engine/pkg/govstore/govtest"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore/ledgertest"
	"github.com/impactdao/treasury-engine/pkg/notifier"
	stakingservice "github.com/impactdao/treasury-engine/pkg/staking/service"
	"github.com/impactdao/treasury-engine/pkg/treasury"
	treasuryservice "github.com/impactdao/treasury-engine/pkg/treasury/service"
)

const testJWTSecret = "api-test-secret"

var (
	apiStaker = common.HexToAddress("0x000000000000000000000000000000000000aaa1")
	apiVoter  = common.HexToAddress("0x000000000000000000000000000000000000bbb2")
)

type apiFixture struct {
	handler    http.Handler
	treasury   treasuryservice.Service
	staking    stakingservice.Service
	governance govservice.Service
	ledger     *ledgertest.Store
}

func setupAPI(t *testing.T) (context.Context, *apiFixture) {
	t.Helper()

	logger := zap.NewNop()
	ledger := ledgertest.NewStore()
	gov := govtest.NewStore()

	cfg := &config.GovernanceConfig{
		MinVotingDurationHours: 1,
		MaxVotingDurationHours: 720,
	}
	treasurySvc := treasuryservice.NewService(ledger, logger)
	stakingSvc := stakingservice.NewService(ledger, logger)
	govSvc := govservice.NewService(gov, ledger, notifier.Nop{}, cfg, logger)

	h := NewHandler(treasurySvc, stakingSvc, govSvc, logger)
	verifier := auth.NewJWTVerifier(testJWTSecret, logger)

	return context.Background(), &apiFixture{
		handler:    NewRouter(h, verifier),
		treasury:   treasurySvc,
		staking:    stakingSvc,
		governance: govSvc,
		ledger:     ledger,
	}
}

func bearerToken(t *testing.T, addr common.Address) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return "Bearer " + signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func seedFee(t *testing.T, ctx context.Context, f *apiFixture, hash string, amt uint64, source treasury.FeeSource) {
	t.Helper()
	_, err := f.treasury.RecordFeeReceived(ctx, apiStaker, amount.New(amt), source, common.HexToHash(hash), 10, 84532)
	if err != nil {
		t.Fatalf("RecordFeeReceived() failed: %v", err)
	}
}

func createProposal(t *testing.T, ctx context.Context, f *apiFixture, quorum uint64) int64 {
	t.Helper()
	p, err := f.governance.CreateProposal(ctx, &govservice.CreateProposalRequest{
		Title:               "Fund water wells",
		Description:         "Quarterly yield allocation",
		Category:            governance.CategoryYieldDistribution,
		Proposer:            apiVoter,
		VotingDurationHours: 24,
		QuorumRequired:      amount.New(quorum),
	})
	if err != nil {
		t.Fatalf("CreateProposal() failed: %v", err)
	}
	return p.ID
}

func TestAPI_Health(t *testing.T) {
	_, f := setupAPI(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", rec.Code)
	}
}

func TestAPI_TreasuryStats(t *testing.T) {
	ctx, f := setupAPI(t)
	seedFee(t, ctx, f, "0x01", 1000, treasury.FeeSourceFundraiser)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/treasury/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		TotalFeesCollected string `json:"total_fees_collected"`
		PendingFeesToStake string `json:"pending_fees_to_stake"`
	}
	decodeInto(t, rec, &got)
	if got.TotalFeesCollected != "1000" {
		t.Fatalf("total_fees_collected = %s, want 1000", got.TotalFeesCollected)
	}
	if got.PendingFeesToStake != "1000" {
		t.Fatalf("pending_fees_to_stake = %s, want 1000", got.PendingFeesToStake)
	}
}

func TestAPI_FeeHistoryPagination(t *testing.T) {
	ctx, f := setupAPI(t)
	for i := 0; i < 5; i++ {
		seedFee(t, ctx, f, fmt.Sprintf("0xfee%02d", i), 100, treasury.FeeSourceFundraiser)
	}

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/treasury/fees?limit=2&offset=0", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fees = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Items   []json.RawMessage `json:"items"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
	}
	decodeInto(t, rec, &got)
	if len(got.Items) != 2 || got.Total != 5 || !got.HasMore {
		t.Fatalf("page = %d items total %d has_more %v, want 2/5/true", len(got.Items), got.Total, got.HasMore)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/treasury/fees?limit=2&offset=4", "", nil)
	decodeInto(t, rec, &got)
	if len(got.Items) != 1 || got.HasMore {
		t.Fatalf("last page = %d items has_more %v, want 1/false", len(got.Items), got.HasMore)
	}
}

func TestAPI_FeeHistoryBadFilter(t *testing.T) {
	_, f := setupAPI(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/treasury/fees?source_type=BAKE_SALE", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter = %d, want 400", rec.Code)
	}
}

func TestAPI_StakeEndpoints(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiStaker, amount.New(300), common.HexToHash("0x10"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/staking/stakes/"+apiStaker.Hex(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stake = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var stake struct {
		Amount string `json:"amount"`
	}
	decodeInto(t, rec, &stake)
	if stake.Amount != "300" {
		t.Fatalf("stake amount = %s, want 300", stake.Amount)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/staking/stakes/"+apiVoter.Hex(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown staker = %d, want 404", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/staking/stakes/"+apiVoter.Hex()+"/claimable", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claimable = %d, want 200", rec.Code)
	}
	var claimable struct {
		Claimable string `json:"claimable"`
	}
	decodeInto(t, rec, &claimable)
	if claimable.Claimable != "0" {
		t.Fatalf("claimable = %s, want 0", claimable.Claimable)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/staking/stakes/not-an-address", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address = %d, want 400", rec.Code)
	}
}

func TestAPI_Stakers(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiStaker, amount.New(750), common.HexToHash("0x11"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if _, err := f.staking.RecordStake(ctx, apiVoter, amount.New(250), common.HexToHash("0x12"), 11, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/staking/stakers", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stakers = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Items []struct {
			Staker             string `json:"staker"`
			ShareOfTreasuryBps string `json:"share_of_treasury_bps"`
			SharePercent       string `json:"share_percent"`
		} `json:"items"`
		Total int `json:"total"`
	}
	decodeInto(t, rec, &got)
	if got.Total != 2 || len(got.Items) != 2 {
		t.Fatalf("stakers total = %d items %d, want 2/2", got.Total, len(got.Items))
	}
	if got.Items[0].ShareOfTreasuryBps != "7500" {
		t.Fatalf("largest share = %s bps, want 7500", got.Items[0].ShareOfTreasuryBps)
	}
	if got.Items[0].SharePercent != "75" {
		t.Fatalf("largest share = %s%%, want 75", got.Items[0].SharePercent)
	}
}

func TestAPI_CreateProposalRequiresAuth(t *testing.T) {
	_, f := setupAPI(t)

	payload := createProposalPayload{
		Title:               "Fund water wells",
		Description:         "Quarterly yield allocation",
		Category:            "GENERAL",
		VotingDurationHours: 24,
		QuorumRequired:      amount.New(100),
	}

	rec := doJSON(t, f.handler, http.MethodPost, "/v1/governance/proposals", "", payload)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/governance/proposals", "Bearer not.a.jwt", payload)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodPost, "/v1/governance/proposals", bearerToken(t, apiVoter), payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		ID       int64  `json:"id"`
		Status   string `json:"status"`
		Proposer string `json:"proposer"`
	}
	decodeInto(t, rec, &got)
	if got.Status != "ACTIVE" {
		t.Fatalf("status = %s, want ACTIVE", got.Status)
	}
	if got.Proposer != apiVoter.Hex() {
		t.Fatalf("proposer = %s, want token subject %s", got.Proposer, apiVoter.Hex())
	}
}

func TestAPI_VoteFlow(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiVoter, amount.New(100), common.HexToHash("0x20"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	id := createProposal(t, ctx, f, 50)
	path := fmt.Sprintf("/v1/governance/proposals/%d/votes", id)
	token := bearerToken(t, apiVoter)

	rec := doJSON(t, f.handler, http.MethodPost, path, token, castVotePayload{Choice: "FOR", Power: amount.New(200)})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("overspend = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodPost, path, token, castVotePayload{Choice: "FOR", Power: amount.New(70)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("vote = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodPost, path, token, castVotePayload{Choice: "AGAINST", Power: amount.New(10)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat vote = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list votes = %d, want 200", rec.Code)
	}
	var votes struct {
		Items []struct {
			Voter string `json:"voter"`
			Power string `json:"power"`
		} `json:"items"`
		Total int `json:"total"`
	}
	decodeInto(t, rec, &votes)
	if votes.Total != 1 || votes.Items[0].Power != "70" {
		t.Fatalf("votes total = %d power %s, want 1/70", votes.Total, votes.Items[0].Power)
	}
}

func TestAPI_CloseAndResults(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiVoter, amount.New(100), common.HexToHash("0x30"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	id := createProposal(t, ctx, f, 50)
	if _, err := f.governance.CastVote(ctx, apiVoter, id, governance.VoteFor, amount.New(70), "", ""); err != nil {
		t.Fatalf("CastVote() failed: %v", err)
	}
	token := bearerToken(t, apiVoter)

	rec := doJSON(t, f.handler, http.MethodPost, fmt.Sprintf("/v1/governance/proposals/%d/close", id), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var closed struct {
		Status string `json:"status"`
	}
	decodeInto(t, rec, &closed)
	if closed.Status != "PASSED" {
		t.Fatalf("status = %s, want PASSED", closed.Status)
	}

	rec = doJSON(t, f.handler, http.MethodPost, fmt.Sprintf("/v1/governance/proposals/%d/close", id), token, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("re-close = %d, want 423: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodGet, fmt.Sprintf("/v1/governance/proposals/%d/results", id), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results = %d, want 200", rec.Code)
	}
	var results struct {
		TotalVotes    string `json:"total_votes"`
		QuorumReached bool   `json:"quorum_reached"`
		IsPassing     bool   `json:"is_passing"`
	}
	decodeInto(t, rec, &results)
	if results.TotalVotes != "70" || !results.QuorumReached || !results.IsPassing {
		t.Fatalf("results = %+v, want 70/true/true", results)
	}
}

func TestAPI_ExecuteProposal(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiVoter, amount.New(100), common.HexToHash("0x40"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	id := createProposal(t, ctx, f, 50)
	if _, err := f.governance.CastVote(ctx, apiVoter, id, governance.VoteFor, amount.New(70), "", ""); err != nil {
		t.Fatalf("CastVote() failed: %v", err)
	}
	if _, err := f.governance.CloseProposal(ctx, id); err != nil {
		t.Fatalf("CloseProposal() failed: %v", err)
	}
	token := bearerToken(t, apiVoter)
	path := fmt.Sprintf("/v1/governance/proposals/%d/execute", id)

	rec := doJSON(t, f.handler, http.MethodPost, path, token, executePayload{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing tx hash = %d, want 400", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodPost, path, token, executePayload{ExecutionTxHash: "0xe1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Status          string `json:"status"`
		ExecutionTxHash string `json:"execution_tx_hash"`
	}
	decodeInto(t, rec, &got)
	if got.Status != "EXECUTED" || got.ExecutionTxHash == "" {
		t.Fatalf("executed = %+v, want EXECUTED with tx hash", got)
	}
}

func TestAPI_VoterPower(t *testing.T) {
	ctx, f := setupAPI(t)
	if _, err := f.staking.RecordStake(ctx, apiVoter, amount.New(50), common.HexToHash("0x50"), 10, 84532); err != nil {
		t.Fatalf("RecordStake() failed: %v", err)
	}
	if err := f.governance.SyncWalletBalance(ctx, apiVoter, amount.New(50)); err != nil {
		t.Fatalf("SyncWalletBalance() failed: %v", err)
	}

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/governance/voters/"+apiVoter.Hex()+"/power", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("power = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Wallet    string `json:"wallet"`
		Staked    string `json:"staked"`
		Total     string `json:"total"`
		Available string `json:"available"`
	}
	decodeInto(t, rec, &got)
	if got.Total != "100" || got.Available != "100" {
		t.Fatalf("power = %+v, want total/available 100", got)
	}
}

func TestAPI_ProposalNotFound(t *testing.T) {
	_, f := setupAPI(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/governance/proposals/999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown proposal = %d, want 404", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/v1/governance/proposals/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d, want 400", rec.Code)
	}
}

func TestAPI_GovernanceStats(t *testing.T) {
	ctx, f := setupAPI(t)
	createProposal(t, ctx, f, 50)

	rec := doJSON(t, f.handler, http.MethodGet, "/v1/governance/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		TotalProposals    int            `json:"total_proposals"`
		ProposalsByStatus map[string]int `json:"proposals_by_status"`
	}
	decodeInto(t, rec, &got)
	if got.TotalProposals != 1 || got.ProposalsByStatus["ACTIVE"] != 1 {
		t.Fatalf("stats = %+v, want 1 active proposal", got)
	}
}

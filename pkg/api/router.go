// Package api exposes the ledger and governance read model plus the
// authenticated governance mutations over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
	"github.com/impactdao/treasury-engine/pkg/auth"
	govservice "github.com/impactdao/treasury-engine/pkg/governance/service"
	stakingservice "github.com/impactdao/treasury-engine/pkg/staking/service"
	treasuryservice "github.com/impactdao/treasury-engine/pkg/treasury/service"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Handler serves the HTTP API.
type Handler struct {
	treasury   treasuryservice.Service
	staking    stakingservice.Service
	governance govservice.Service
	logger     *zap.Logger
}

// NewHandler creates an API handler over the three services.
func NewHandler(
	treasury treasuryservice.Service,
	staking stakingservice.Service,
	governance govservice.Service,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		treasury:   treasury,
		staking:    staking,
		governance: governance,
		logger:     logger,
	}
}

// RegisterRoutes mounts all API endpoints on the given router. Mutations sit
// behind the bearer-token verifier.
func (h *Handler) RegisterRoutes(r chi.Router, verifier *auth.JWTVerifier) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/treasury", func(r chi.Router) {
			r.Get("/stats", apphttp.HandleError(h.treasuryStats))
			r.Get("/fees", apphttp.HandleError(h.feeHistory))
		})

		r.Route("/staking", func(r chi.Router) {
			r.Get("/stakes/{staker}", apphttp.HandleError(h.stakeOf))
			r.Get("/stakes/{staker}/claimable", apphttp.HandleError(h.claimableYield))
			r.Get("/stakers", apphttp.HandleError(h.stakers))
		})

		r.Route("/governance", func(r chi.Router) {
			r.Get("/stats", apphttp.HandleError(h.votingStats))
			r.Get("/proposals", apphttp.HandleError(h.listProposals))
			r.Get("/proposals/{id}", apphttp.HandleError(h.getProposal))
			r.Get("/proposals/{id}/votes", apphttp.HandleError(h.proposalVotes))
			r.Get("/proposals/{id}/results", apphttp.HandleError(h.proposalResults))
			r.Get("/voters/{addr}/votes", apphttp.HandleError(h.voterVotes))
			r.Get("/voters/{addr}/power", apphttp.HandleError(h.voterPower))

			r.Group(func(r chi.Router) {
				r.Use(verifier.Middleware)
				r.Post("/proposals", apphttp.HandleError(h.createProposal))
				r.Post("/proposals/{id}/votes", apphttp.HandleError(h.castVote))
				r.Post("/proposals/{id}/close", apphttp.HandleError(h.closeProposal))
				r.Post("/proposals/{id}/execute", apphttp.HandleError(h.executeProposal))
			})
		})
	})
}

// NewRouter builds the full server router with the standard middleware stack.
func NewRouter(h *Handler, verifier *auth.JWTVerifier) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r, verifier)
	return r
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, apperrors.BadRequestError(err, "invalid limit")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.BadRequestError(err, "invalid offset")
		}
	}
	return limit, offset, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperrors.BadRequestError(err, "invalid proposal id")
	}
	return id, nil
}

func parseAddressParam(r *http.Request, name string) (common.Address, error) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.BadRequestError(nil, "invalid address")
	}
	return common.HexToAddress(raw), nil
}

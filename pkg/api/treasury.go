package api

import (
	"net/http"

	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/treasury"
)

func (h *Handler) treasuryStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.treasury.Stats(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toTreasuryStatsResponse(stats))
	return nil
}

func (h *Handler) feeHistory(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePage(r)
	if err != nil {
		return err
	}

	q := ledgerstore.FeeQuery{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("source_type"); raw != "" {
		sourceType, err := treasury.ParseFeeSource(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid source type")
		}
		q.SourceType = &sourceType
	}

	fees, total, err := h.treasury.FeeHistory(r.Context(), q)
	if err != nil {
		return err
	}

	items := make([]*feeResponse, 0, len(fees))
	for _, f := range fees {
		items = append(items, toFeeResponse(f))
	}
	apphttp.WriteJSON(w, http.StatusOK, newPage(items, len(items), total, offset))
	return nil
}

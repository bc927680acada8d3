package api

import (
	"net/http"

	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
)

func (h *Handler) stakeOf(w http.ResponseWriter, r *http.Request) error {
	staker, err := parseAddressParam(r, "staker")
	if err != nil {
		return err
	}

	stake, err := h.staking.StakeOf(r.Context(), staker)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toStakeResponse(stake))
	return nil
}

func (h *Handler) claimableYield(w http.ResponseWriter, r *http.Request) error {
	staker, err := parseAddressParam(r, "staker")
	if err != nil {
		return err
	}

	claimable, err := h.staking.ClaimableYield(r.Context(), staker)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, &claimableResponse{
		Staker:    staker.Hex(),
		Claimable: claimable,
	})
	return nil
}

func (h *Handler) stakers(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePage(r)
	if err != nil {
		return err
	}

	shares, total, err := h.staking.Stakers(r.Context(), limit, offset)
	if err != nil {
		return err
	}

	items := make([]*stakerShareResponse, 0, len(shares))
	for _, s := range shares {
		items = append(items, toStakerShareResponse(s))
	}
	apphttp.WriteJSON(w, http.StatusOK, newPage(items, len(items), total, offset))
	return nil
}

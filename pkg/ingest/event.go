// Package ingest is the event ingestion boundary: it decodes chain-originated
// ledger events from the queue and applies them to the fee, stake and
// governance services. Delivery is at-least-once; an already-applied
// transaction hash is acknowledged as a benign redelivery, never re-applied.
package ingest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/impactdao/treasury-engine/pkg/amount"
)

// EventKind identifies the ledger mutation an event carries.
type EventKind string

const (
	EventFeeReceived    EventKind = "FEE_RECEIVED"
	EventFeesStaked     EventKind = "FEES_STAKED"
	EventStaked         EventKind = "STAKED"
	EventUnstaked       EventKind = "UNSTAKED"
	EventYieldClaimed   EventKind = "YIELD_CLAIMED"
	EventYieldHarvested EventKind = "YIELD_HARVESTED"
	EventBalanceSynced  EventKind = "BALANCE_SYNCED"
)

// Event is one chain-originated ledger event. Fields beyond Kind, TxHash and
// Amount are meaningful per kind only.
type Event struct {
	Kind            EventKind      `json:"kind"`
	TxHash          common.Hash    `json:"tx_hash"`
	Source          common.Address `json:"source,omitempty"`
	Staker          common.Address `json:"staker,omitempty"`
	Amount          amount.Amount  `json:"amount"`
	EndowmentAmount amount.Amount  `json:"endowment_amount,omitempty"`
	SourceType      string         `json:"source_type,omitempty"`
	BlockNumber     int64          `json:"block_number,omitempty"`
	ChainID         int64          `json:"chain_id,omitempty"`
	DistributionID  string         `json:"distribution_id,omitempty"`
}

// Validate checks the per-kind required fields.
func (e *Event) Validate() error {
	switch e.Kind {
	case EventFeeReceived:
		if e.TxHash == (common.Hash{}) {
			return fmt.Errorf("fee event missing tx hash")
		}
		if e.SourceType == "" {
			return fmt.Errorf("fee event missing source type")
		}
	case EventFeesStaked, EventStaked, EventUnstaked, EventYieldClaimed:
		if e.TxHash == (common.Hash{}) {
			return fmt.Errorf("%s event missing tx hash", e.Kind)
		}
	case EventYieldHarvested:
		if e.TxHash == (common.Hash{}) && e.DistributionID == "" {
			return fmt.Errorf("harvest event missing tx hash and distribution id")
		}
	case EventBalanceSynced:
		if e.Staker == (common.Address{}) {
			return fmt.Errorf("balance sync event missing staker")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// distributionID is the idempotency key of a harvest event: an explicit id
// when carried, the chain transaction hash otherwise.
func (e *Event) distributionID() string {
	if e.DistributionID != "" {
		return e.DistributionID
	}
	return e.TxHash.Hex()
}

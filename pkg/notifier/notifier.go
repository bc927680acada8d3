// Package notifier publishes governance activity notifications for UI
// subscription channels. Delivery is best-effort: a failed publish is logged
// by the implementation and never fails the mutation that triggered it.
package notifier

import (
	"context"

	"github.com/impactdao/treasury-engine/pkg/governance"
)

// Notifier publishes one message per successful governance mutation.
type Notifier interface {
	ProposalCreated(ctx context.Context, p *governance.Proposal)
	VoteCast(ctx context.Context, p *governance.Proposal, v *governance.Vote)
	ProposalStatusChanged(ctx context.Context, p *governance.Proposal, from governance.ProposalStatus)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) ProposalCreated(context.Context, *governance.Proposal) {}

func (Nop) VoteCast(context.Context, *governance.Proposal, *governance.Vote) {}

func (Nop) ProposalStatusChanged(context.Context, *governance.Proposal, governance.ProposalStatus) {}

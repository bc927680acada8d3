package governance

import "github.com/impactdao/treasury-engine/pkg/amount"

// VotingPower is wallet balance plus staked balance. Vested-but-unclaimed
// balance never counts. The result is never persisted; eligibility checks
// recompute it from current balances every time.
func VotingPower(wallet, staked amount.Amount) amount.Amount {
	return wallet.Add(staked)
}

// AvailableVotingPower is total power minus the power already committed to
// votes on currently active proposals. Committed power exceeding the total
// yields zero rather than a negative.
func AvailableVotingPower(wallet, staked, committed amount.Amount) amount.Amount {
	available, _ := VotingPower(wallet, staked).SubClamped(committed)
	return available
}

package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Context keys for authentication data
type contextKey string

// ContextKeyVoter is the context key for the authenticated voter address.
const ContextKeyVoter contextKey = "voter_address"

// WithVoter adds the authenticated voter address to the context.
func WithVoter(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, ContextKeyVoter, addr)
}

// VoterFromContext retrieves the authenticated voter address from the context.
func VoterFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(ContextKeyVoter).(common.Address)
	return addr, ok
}

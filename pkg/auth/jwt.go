// Package auth verifies platform-issued bearer tokens. Token issuance lives
// in the platform backend; this side only checks the HMAC signature and maps
// the subject claim to a voter address.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
)

// JWTVerifier validates HS256 bearer tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
	logger *zap.Logger
}

// NewJWTVerifier creates a new token verifier.
func NewJWTVerifier(secret string, logger *zap.Logger) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		logger: logger,
	}
}

// VerifyToken validates a token and returns the voter address carried in the
// subject claim.
func (v *JWTVerifier) VerifyToken(tokenString string) (common.Address, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return common.Address{}, fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read subject claim: %w", err)
	}
	if !common.IsHexAddress(subject) {
		return common.Address{}, fmt.Errorf("subject %q is not an address", subject)
	}
	return common.HexToAddress(subject), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// authenticated voter address on the request context.
func (v *JWTVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
			return
		}

		voter, err := v.VerifyToken(tokenString)
		if err != nil {
			v.logger.Warn("rejected bearer token", zap.Error(err))
			apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid bearer token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithVoter(r.Context(), voter)))
	})
}

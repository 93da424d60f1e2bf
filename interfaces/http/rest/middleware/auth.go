package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgerrors "topicgraph/pkg/errors"
)

// Headers the Lambda entrypoint sets after API Gateway's JWT authorizer has
// accepted the caller. They are trusted only when the Authenticator is built
// with trustGateway.
const (
	GatewayAuthorizedHeader = "X-API-Gateway-Authorized"
	GatewaySubjectHeader    = "X-User-ID"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the JWT claims the API accepts
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

type subjectKey struct{}

// SubjectFromContext returns the authenticated caller, if any
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}

// Authenticator validates HS256 bearer tokens
type Authenticator struct {
	secret       []byte
	issuer       string
	trustGateway bool
	now          func() time.Time
}

// NewAuthenticator creates an authenticator for the shared secret. An empty
// issuer accepts any issuer. With trustGateway, requests already accepted by
// API Gateway skip signature checks.
func NewAuthenticator(secret, issuer string, trustGateway bool) *Authenticator {
	return &Authenticator{
		secret:       []byte(secret),
		issuer:       issuer,
		trustGateway: trustGateway,
		now:          time.Now,
	}
}

// Validate parses and verifies a signed token
func (a *Authenticator) Validate(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case !parsed.Valid:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate rejects requests without a valid bearer token with 401 and
// stores the token subject on the request context.
func Authenticate(auth *Authenticator, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.trustGateway && r.Header.Get(GatewayAuthorizedHeader) == "true" {
				subject := r.Header.Get(GatewaySubjectHeader)
				if subject == "" {
					errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("missing user context from API Gateway"))
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError(ErrMissingToken.Error()))
				return
			}

			claims, err := auth.Validate(token)
			if err != nil {
				logger.Warn("Rejected token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
					zap.String("client", clientKey(r)),
				)
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError(err.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, claims.Subject)))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

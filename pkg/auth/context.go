// Package auth provides bearer-token extraction and the request context that
// binds each request to its session.
package auth

import (
	"context"
	"time"
)

// AccessToken is the decoded credential for the current request. It is
// carried in the request context and consulted by the resource providers.
type AccessToken struct {
	// Raw is the bearer token as received, forwarded to the pod on I/O.
	Raw string

	// TokenID is the jti claim, or a hash of the raw token when absent.
	TokenID string

	// Subject is the sub claim, expected to be a WebID-style URL.
	Subject string

	// Expiry is the exp claim, or nil when the token does not expire.
	Expiry *time.Time
}

// SessionKey returns the identity used to partition session state: the token
// id when present, otherwise the subject.
func (t *AccessToken) SessionKey() string {
	if t.TokenID != "" {
		return t.TokenID
	}
	return t.Subject
}

// IsExpired reports whether the token is past its expiry.
func (t *AccessToken) IsExpired(now time.Time) bool {
	return t.Expiry != nil && now.After(*t.Expiry)
}

// accessTokenKey is the context key for the AccessToken.
//
// Using an empty struct as the key prevents collisions with other context
// keys, as each empty struct type is distinct even if they have the same name
// in different packages.
type accessTokenKey struct{}

// WithAccessToken stores an AccessToken in the context. If token is nil, the
// original context is returned unchanged.
func WithAccessToken(ctx context.Context, token *AccessToken) context.Context {
	if token == nil {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext retrieves the AccessToken from the context. Returns
// the token and true if present, nil and false otherwise.
func AccessTokenFromContext(ctx context.Context) (*AccessToken, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(*AccessToken)
	return token, ok
}

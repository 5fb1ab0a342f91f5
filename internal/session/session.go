// Package session resolves the signed-in customer for a request.
//
// A nil *Session means nobody is signed in. That is a policy branch, not an
// error: read paths serve anonymous results and mutations answer
// login-required.
package session

import (
	"context"
)

// Session identifies the signed-in customer.
type Session struct {
	UserID int `json:"user_id"`
}

// Provider returns the current session, or nil when signed out.
type Provider interface {
	Current(ctx context.Context) (*Session, error)
}

type contextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// ContextProvider reads the session the auth middleware stored on the
// request context.
type ContextProvider struct{}

// Current implements Provider.
func (ContextProvider) Current(ctx context.Context) (*Session, error) {
	return FromContext(ctx), nil
}

// Static always returns the same session. A zero UserID means signed out.
type Static struct {
	UserID int
}

// Current implements Provider.
func (s Static) Current(context.Context) (*Session, error) {
	if s.UserID <= 0 {
		return nil, nil
	}
	return &Session{UserID: s.UserID}, nil
}

// UserIDOrZero returns the signed-in user id, or 0 when signed out.
func UserIDOrZero(s *Session) int {
	if s == nil {
		return 0
	}
	return s.UserID
}

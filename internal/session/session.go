// Package session carries the authenticated staff identity through request
// contexts and mints/verifies the signed bearer tokens staff use.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "famrun"

var ErrInvalidToken = errors.New("session: invalid token")

// Session is the staff identity attached to one request.
type Session struct {
	StaffID   string
	ExpiresAt time.Time
}

type sessionContextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok && s.StaffID != ""
}

// ActorID returns the staff id for audit fields, or "" without a session.
func ActorID(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.StaffID
}

type claims struct {
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 staff tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("session secret is empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tokens) Issue(staffID string) (string, Session, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return "", Session{}, fmt.Errorf("staff id is required")
	}
	now := t.now()
	exp := now.Add(t.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Session{StaffID: staffID, ExpiresAt: exp.UTC().Truncate(time.Second)}, nil
}

func (t *Tokens) Verify(raw string) (Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &c,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Session{}, errors.Join(ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Session{}, ErrInvalidToken
	}
	return Session{StaffID: c.Subject, ExpiresAt: c.ExpiresAt.Time.UTC()}, nil
}

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", ActorID(context.Background()))

	ctx := WithSession(context.Background(), Session{StaffID: "marie"})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "marie", s.StaffID)
	assert.Equal(t, "marie", ActorID(ctx))
}

func TestTokensIssueVerify(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)

	raw, issued, err := tokens.Issue("marie")
	require.NoError(t, err)

	got, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "marie", got.StaffID)
	assert.True(t, issued.ExpiresAt.Equal(got.ExpiresAt))
}

func TestTokensRejectTamperedAndExpired(t *testing.T) {
	tokens, err := NewTokens("secret", time.Minute)
	require.NoError(t, err)
	other, err := NewTokens("other-secret", time.Minute)
	require.NoError(t, err)

	raw, _, err := other.Issue("mallory")
	require.NoError(t, err)
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	base := time.Now()
	tokens.now = func() time.Time { return base }
	raw, _, err = tokens.Issue("marie")
	require.NoError(t, err)
	tokens.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(" ", 0)
	assert.Error(t, err)

	tokens, err := NewTokens("s", 0)
	require.NoError(t, err)
	_, _, err = tokens.Issue("")
	assert.Error(t, err)
}

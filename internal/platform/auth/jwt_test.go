package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_SignAndParse(t *testing.T) {
	m := NewManager("secret", time.Hour)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }

	tok, err := m.Sign("u1", "alice", "organizer")
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "organizer", claims.Kind)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.Exp)
}

func TestManager_ParseExpired(t *testing.T) {
	m := NewManager("secret", time.Second)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	tok, err := m.Sign("u1", "alice", "artist")
	require.NoError(t, err)

	m.Now = func() time.Time { return now.Add(2 * time.Second) }
	_, err = m.Parse(tok)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_ParseWrongSecret(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	signer := NewManager("secret", time.Hour)
	signer.Now = func() time.Time { return now }
	tok, err := signer.Sign("u1", "alice", "user")
	require.NoError(t, err)

	other := NewManager("other", time.Hour)
	other.Now = signer.Now
	_, err = other.Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.Parse("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer  abc "))
	require.Empty(t, BearerToken("Basic abc"))
	require.Empty(t, BearerToken(""))
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"avia-bot/internal/domain"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	_, ok, err := s.GetState(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	state := domain.DialogState{UserID: 42, Params: domain.FlightParams{Origin: "MOW"}}
	require.NoError(t, s.SaveState(ctx, state))

	got, ok, err := s.GetState(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "MOW", got.Params.Origin)

	require.NoError(t, s.DeleteState(ctx, 42))
	_, ok, err = s.GetState(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SaveState(ctx, domain.DialogState{UserID: 1}))
	now = now.Add(2 * time.Minute)

	_, ok, err := s.GetState(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_SweepsExpiredOnSave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SaveState(ctx, domain.DialogState{UserID: 1}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.SaveState(ctx, domain.DialogState{UserID: 2}))
	require.Len(t, s.entries, 1)
}

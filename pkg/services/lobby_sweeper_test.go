package services

import (
	"context"
	"testing"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLobbySweeperExpiresStaleLobbies(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f.registry.now = func() time.Time { return now.Add(-2 * time.Hour) }
	stale, err := f.registry.CreateDuel(ctx, "alice", "Alice")
	require.NoError(t, err)
	started := f.startDuel(t)

	f.registry.now = func() time.Time { return now.Add(-time.Minute) }
	fresh, err := f.registry.CreateDuel(ctx, "carol", "Carol")
	require.NoError(t, err)

	sweeper := NewLobbySweeper(f.store, f.locks, time.Hour, time.Minute)
	sweeper.now = func() time.Time { return now }

	expired, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	tests := []struct {
		duelID string
		want   models.DuelState
	}{
		{stale.Duel.ID, models.StateExpired},
		{started.Duel.ID, models.StateInProgress},
		{fresh.Duel.ID, models.StateWaitingForOpponent},
	}
	for _, tt := range tests {
		snapshot, err := f.registry.GetDuel(ctx, tt.duelID)
		require.NoError(t, err)
		assert.Equal(t, tt.want, snapshot.State)
	}

	_, err = f.registry.JoinDuel(ctx, "bob", "Bob", stale.Duel.RoomCode)
	assert.ErrorIs(t, err, errs.ErrNotLobby)

	expired, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestLobbySweeperStartStop(t *testing.T) {
	f := newFixture(t, 1)

	sweeper := NewLobbySweeper(f.store, f.locks, time.Hour, time.Hour)
	require.NoError(t, sweeper.Start())
	assert.NoError(t, sweeper.Stop())

	idle := NewLobbySweeper(f.store, f.locks, time.Hour, time.Hour)
	assert.NoError(t, idle.Stop())
}

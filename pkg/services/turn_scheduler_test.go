package services

import (
	"context"
	"testing"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceTurnFlipsAndChangesQuestion(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)
	previous := duel.Duel.CurrentQuestionID

	change, err := f.turns.AdvanceTurn(ctx, duel.Duel.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", change.Recipient.UserID)
	require.NotNil(t, change.Question)
	assert.NotEqual(t, previous, change.Question.ID)

	snapshot, err := f.registry.GetDuel(ctx, duel.Duel.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", snapshot.TurnUserID)
	assert.Equal(t, change.Question.ID, snapshot.Duel.CurrentQuestionID)

	turnHolders := 0
	for _, p := range snapshot.Participants {
		if p.HasTurn {
			turnHolders++
		}
	}
	assert.Equal(t, 1, turnHolders)
}

func TestAdvanceTurnSingleQuestionPool(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	duel := f.startDuel(t)

	change, err := f.turns.AdvanceTurn(ctx, duel.Duel.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", change.Recipient.UserID)
	assert.Equal(t, 1, change.Question.ID)
}

func TestAdvanceTurnWithoutOpponent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	lobby, err := f.registry.CreateDuel(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, err = f.turns.AdvanceTurn(ctx, lobby.Duel.ID, "alice")
	assert.ErrorIs(t, err, errs.ErrOpponentNotFound)
	assert.True(t, errs.IsNotFound(err))

	_, err = f.turns.PassTurn(ctx, lobby.Duel.ID, "alice")
	assert.ErrorIs(t, err, errs.ErrOpponentNotFound)
}

func TestPassTurnKeepsQuestion(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)

	change, err := f.turns.PassTurn(ctx, duel.Duel.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", change.Recipient.UserID)
	assert.Nil(t, change.Question)

	snapshot, err := f.registry.GetDuel(ctx, duel.Duel.ID)
	require.NoError(t, err)
	assert.Equal(t, duel.Duel.CurrentQuestionID, snapshot.Duel.CurrentQuestionID)
	assert.Equal(t, "bob", snapshot.TurnUserID)
}

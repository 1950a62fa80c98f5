package services

import (
	"context"
	"testing"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreLedgerSumInvariant(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	duel := f.startDuel(t)

	winners := []string{"alice", "", "bob", "alice", ""}
	ties := 0
	for i, w := range winners {
		report, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, i+1, w)
		require.NoError(t, err)
		require.True(t, report.Applied)
		if w == "" {
			ties++
		}

		sum := 0
		for _, score := range report.Scores {
			sum += score
		}
		n := i + 1
		assert.LessOrEqual(t, sum, n)
		assert.Equal(t, n-ties, sum)
	}

	report, err := f.ledger.Report(ctx, duel.Duel.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, report.Scores)
	assert.Equal(t, "alice", report.Leader)
	assert.False(t, report.ThresholdReached)
}

func TestScoreLedgerRoundAppliedOnce(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	duel := f.startDuel(t)

	first, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, 1, "bob")
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, "bob", first.RoundWinnerID)

	again, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, 1, "bob")
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Empty(t, again.RoundWinnerID)
	assert.Equal(t, first.Scores, again.Scores)

	_, err = f.ledger.ApplyRound(ctx, duel.Duel.ID, 3, "bob")
	assert.True(t, errs.IsConflict(err))

	_, err = f.ledger.ApplyRound(ctx, duel.Duel.ID, 0, "bob")
	assert.True(t, errs.IsValidation(err))
}

func TestScoreLedgerThreshold(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	duel := f.startDuel(t)

	for round, winner := range []string{"alice", "bob", "alice"} {
		report, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, round+1, winner)
		require.NoError(t, err)
		assert.False(t, report.ThresholdReached)
	}

	report, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, 4, "alice")
	require.NoError(t, err)
	assert.True(t, report.ThresholdReached)
	assert.Equal(t, "alice", report.MatchWinnerID)
	assert.Equal(t, 3, report.Scores["alice"])
	assert.Equal(t, 1, report.Scores["bob"])
}

func TestScoreLedgerTiedLeader(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	duel := f.startDuel(t)

	report, err := f.ledger.ApplyRound(ctx, duel.Duel.ID, 1, "")
	require.NoError(t, err)
	assert.Empty(t, report.Leader)
}

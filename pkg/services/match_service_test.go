package services

import (
	"context"
	"sync"
	"testing"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstRoundScenario(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	duel := f.startDuel(t)
	assert.Equal(t, "alice", duel.TurnUserID)
	assert.Equal(t, 0, scoreOf(t, duel, "alice"))
	assert.Equal(t, 0, scoreOf(t, duel, "bob"))
	firstQuestion := duel.Duel.CurrentQuestionID

	opened := f.answer(t, duel.Duel.ID, "alice", true, 5)
	assert.Equal(t, models.StateInProgress, opened.State)
	assert.Equal(t, "bob", opened.TurnUserID)
	assert.Equal(t, firstQuestion, opened.Duel.CurrentQuestionID)
	assert.Equal(t, 1, opened.Round)

	resolved := f.answer(t, duel.Duel.ID, "bob", true, 8)
	assert.Equal(t, models.StateInProgress, resolved.State)
	assert.Equal(t, 1, scoreOf(t, resolved, "alice"))
	assert.Equal(t, 0, scoreOf(t, resolved, "bob"))
	assert.Equal(t, "alice", resolved.TurnUserID)
	assert.NotEqual(t, firstQuestion, resolved.Duel.CurrentQuestionID)
	assert.Equal(t, 2, resolved.Round)

	rounds, err := f.registry.Rounds(ctx, duel.Duel.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.True(t, rounds[0].Complete)
	assert.Equal(t, "alice", rounds[0].WinnerID)
	assert.Equal(t, "alice", rounds[0].Answers[0].UserID)

	f.dispatcher.Wait()
	assert.ElementsMatch(t, []turnCall{
		{"alice", duel.Duel.ID, duel.Duel.RoomCode, "Bob"},
		{"bob", duel.Duel.ID, duel.Duel.RoomCode, "Alice"},
		{"alice", duel.Duel.ID, duel.Duel.RoomCode, "Bob"},
	}, f.notifier.Turns())
	assert.Empty(t, f.notifier.Results())
}

func TestMatchCompletesAtThreshold(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)
	id := duel.Duel.ID

	rounds := []struct {
		aliceCorrect bool
		aliceTime    int
		bobCorrect   bool
		bobTime      int
	}{
		{true, 5, true, 8},  // alice 1-0
		{false, 2, true, 9}, // bob 1-1
		{true, 3, false, 1}, // alice 2-1
		{true, 2, true, 2},  // empate
		{true, 1, true, 4},  // alice 3-1
	}

	var last *models.DuelSnapshot
	for i, r := range rounds {
		f.answer(t, id, "alice", r.aliceCorrect, r.aliceTime)
		last = f.answer(t, id, "bob", r.bobCorrect, r.bobTime)
		if i < len(rounds)-1 {
			assert.Equal(t, models.StateInProgress, last.State, "ronda %d", i+1)
		}
	}

	assert.Equal(t, models.StateCompleted, last.State)
	assert.False(t, last.Duel.Active)
	assert.NotNil(t, last.Duel.CompletedAt)
	assert.Equal(t, "alice", last.Duel.WinnerID)
	assert.Equal(t, 3, scoreOf(t, last, "alice"))
	assert.Equal(t, 1, scoreOf(t, last, "bob"))
	assert.Empty(t, last.TurnUserID)
	for _, p := range last.Participants {
		assert.False(t, p.HasTurn, p.UserID)
	}

	_, err := f.match.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true})
	assert.ErrorIs(t, err, errs.ErrDuelCompleted)
	_, err = f.match.SubmitAnswer(ctx, id, "bob", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true})
	assert.True(t, errs.IsConflict(err))

	f.dispatcher.Wait()
	results := f.notifier.Results()
	require.Len(t, results, 1)
	assert.Equal(t, models.MatchResult{
		DuelID:      id,
		WinnerID:    "alice",
		WinnerName:  "Alice",
		WinnerScore: 3,
		LoserID:     "bob",
		LoserName:   "Bob",
		LoserScore:  1,
	}, results[0])

	history, err := f.registry.Rounds(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "", history[3].WinnerID)
}

func TestDuplicateSequenceRejected(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)
	id := duel.Duel.ID

	_, err := f.match.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 5, IsCorrect: true, Sequence: 1})
	require.NoError(t, err)
	f.answer(t, id, "bob", false, 3)

	// alice vuelve a tener el turno; reenviar la secuencia 1 no cuenta
	_, err = f.match.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true, Sequence: 1})
	assert.ErrorIs(t, err, errs.ErrDuplicateAnswer)

	_, err = f.match.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true, Sequence: 5})
	assert.True(t, errs.IsConflict(err))

	snapshot, err := f.registry.GetDuel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, scoreOf(t, snapshot, "alice"))
	assert.Equal(t, 0, scoreOf(t, snapshot, "bob"))
}

func TestConcurrentSubmissionsCountOnce(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)
	id := duel.Duel.ID

	// dos instancias con locks propios simulan dos procesos
	other := NewMatchService(f.store, f.questions, f.ledger, f.turns, NewDuelLocks(), f.dispatcher)
	services := []*MatchService{f.match, other}

	var wg sync.WaitGroup
	errsCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(svc *MatchService) {
			defer wg.Done()
			_, err := svc.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 4, IsCorrect: true})
			errsCh <- err
		}(services[i%2])
	}
	wg.Wait()
	close(errsCh)

	succeeded := 0
	for err := range errsCh {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errs.IsConflict(err), "error inesperado: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	final := f.answer(t, id, "bob", true, 6)
	assert.Equal(t, 1, scoreOf(t, final, "alice"))
	assert.Equal(t, 0, scoreOf(t, final, "bob"))

	answers, err := f.store.ListAnswers(ctx, id)
	require.NoError(t, err)
	assert.Len(t, answers, 2)
}

func TestSubmitAnswerRejections(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)
	id := duel.Duel.ID

	lobby, err := f.registry.CreateDuel(ctx, "carol", "Carol")
	require.NoError(t, err)

	tests := []struct {
		name   string
		duelID string
		userID string
		sub    models.AnswerSubmission
		check  func(error) bool
	}{
		{"sin usuario", id, "", models.AnswerSubmission{}, errs.IsValidation},
		{"tiempo negativo", id, "alice", models.AnswerSubmission{TimeTaken: -1}, errs.IsValidation},
		{"opción inválida", id, "alice", models.AnswerSubmission{SelectedOption: "E"}, errs.IsValidation},
		{"duelo desconocido", "nope", "alice", models.AnswerSubmission{}, errs.IsNotFound},
		{"no participa", id, "mallory", models.AnswerSubmission{}, errs.IsNotFound},
		{"no es su turno", id, "bob", models.AnswerSubmission{}, errs.IsConflict},
		{"sala sin oponente", lobby.Duel.ID, "carol", models.AnswerSubmission{}, errs.IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.match.SubmitAnswer(ctx, tt.duelID, tt.userID, tt.sub)
			require.Error(t, err)
			assert.True(t, tt.check(err), "clasificación %s para %v", errs.KindOf(err), err)
		})
	}
}

func TestSelectedOptionDecidesCorrectness(t *testing.T) {
	f := newFixture(t, 5)
	duel := f.startDuel(t)
	id := duel.Duel.ID
	ctx := context.Background()

	// todas las preguntas de prueba tienen B como correcta
	_, err := f.match.SubmitAnswer(ctx, id, "alice", models.AnswerSubmission{TimeTaken: 9, SelectedOption: "B"})
	require.NoError(t, err)
	snapshot, err := f.match.SubmitAnswer(ctx, id, "bob", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true, SelectedOption: "C"})
	require.NoError(t, err)

	assert.Equal(t, 1, scoreOf(t, snapshot, "alice"))
	assert.Equal(t, 0, scoreOf(t, snapshot, "bob"))

	rounds, err := f.registry.Rounds(ctx, id)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.True(t, rounds[0].Answers[0].IsCorrect)
	assert.False(t, rounds[0].Answers[1].IsCorrect)
	assert.Equal(t, "C", rounds[0].Answers[1].SelectedOption)
}

func TestLeftParticipantCannotAnswer(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	duel := f.startDuel(t)

	left, err := f.registry.LeaveDuel(ctx, "alice", duel.Duel.ID)
	require.NoError(t, err)
	assert.True(t, left.Abandoned)
	assert.Equal(t, models.StateInProgress, left.State)

	_, err = f.match.SubmitAnswer(ctx, duel.Duel.ID, "alice", models.AnswerSubmission{TimeTaken: 1, IsCorrect: true})
	assert.True(t, errs.IsConflict(err))
}

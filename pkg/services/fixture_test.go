package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/backsoul/trivia-duel/pkg/models"
	redisstore "github.com/backsoul/trivia-duel/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type turnCall struct {
	RecipientID    string
	DuelID         string
	RoomCode       string
	ActingUsername string
}

type recordingNotifier struct {
	mu      sync.Mutex
	turns   []turnCall
	results []models.MatchResult
	err     error
}

func (n *recordingNotifier) NotifyTurn(_ context.Context, recipientID, duelID, roomCode, actingUsername string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.turns = append(n.turns, turnCall{recipientID, duelID, roomCode, actingUsername})
	return n.err
}

func (n *recordingNotifier) NotifyMatchResult(_ context.Context, result models.MatchResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
	return n.err
}

func (n *recordingNotifier) Turns() []turnCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]turnCall(nil), n.turns...)
}

func (n *recordingNotifier) Results() []models.MatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.MatchResult(nil), n.results...)
}

type fixture struct {
	mr         *miniredis.Miniredis
	store      *redisstore.RedisClient
	questions  *QuestionService
	locks      *DuelLocks
	notifier   *recordingNotifier
	dispatcher *Dispatcher
	ledger     *ScoreLedger
	turns      *TurnScheduler
	registry   *RegistryService
	match      *MatchService
}

func sampleQuestions(n int) []models.Question {
	questions := make([]models.Question, 0, n)
	for i := 1; i <= n; i++ {
		questions = append(questions, models.Question{
			ID:       i,
			Question: fmt.Sprintf("Pregunta %d", i),
			Options: map[string]string{
				"A": "uno", "B": "dos", "C": "tres", "D": "cuatro",
			},
			Correct:    "B",
			Difficulty: 1,
		})
	}
	return questions
}

func newFixture(t *testing.T, questionCount int) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := redisstore.NewFromClient(rdb)
	if questionCount > 0 {
		require.NoError(t, store.ReplaceQuestions(context.Background(), sampleQuestions(questionCount)))
	}

	f := &fixture{
		mr:        mr,
		store:     store,
		questions: NewQuestionService(store),
	}
	f.wire(store)
	return f
}

// wire arma los servicios del duelo sobre duels; las preguntas siguen en Redis
func (f *fixture) wire(duels DuelStore) {
	f.locks = NewDuelLocks()
	f.notifier = &recordingNotifier{}
	f.dispatcher = NewDispatcher(f.notifier, 0)
	f.ledger = NewScoreLedger(duels)
	f.turns = NewTurnScheduler(duels, f.questions)
	f.registry = NewRegistryService(duels, f.questions, f.locks, f.dispatcher, models.DefaultWinThreshold)
	f.match = NewMatchService(duels, f.questions, f.ledger, f.turns, f.locks, f.dispatcher)
}

// startDuel crea un duelo de alice y une a bob
func (f *fixture) startDuel(t *testing.T) *models.DuelSnapshot {
	t.Helper()
	ctx := context.Background()

	created, err := f.registry.CreateDuel(ctx, "alice", "Alice")
	require.NoError(t, err)
	joined, err := f.registry.JoinDuel(ctx, "bob", "Bob", created.Duel.RoomCode)
	require.NoError(t, err)
	require.Equal(t, models.StateInProgress, joined.State)
	return joined
}

func (f *fixture) answer(t *testing.T, duelID, userID string, correct bool, seconds int) *models.DuelSnapshot {
	t.Helper()
	snapshot, err := f.match.SubmitAnswer(context.Background(), duelID, userID, models.AnswerSubmission{
		TimeTaken: seconds,
		IsCorrect: correct,
	})
	require.NoError(t, err)
	return snapshot
}

func scoreOf(t *testing.T, s *models.DuelSnapshot, userID string) int {
	t.Helper()
	p, ok := s.Participant(userID)
	require.True(t, ok, "participante %s", userID)
	return p.Score
}

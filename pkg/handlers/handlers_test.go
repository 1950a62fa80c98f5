package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/backsoul/trivia-duel/pkg/models"
	redisstore "github.com/backsoul/trivia-duel/pkg/redis"
	"github.com/backsoul/trivia-duel/pkg/services"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []models.DuelSnapshot
}

func (p *recordingPublisher) PublishDuel(_ context.Context, snapshot *models.DuelSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, *snapshot)
	return nil
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type testServer struct {
	mr        *miniredis.Miniredis
	client    *fasthttp.Client
	publisher *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	questions := make([]models.Question, 0, 3)
	for i := 1; i <= 3; i++ {
		questions = append(questions, models.Question{
			ID:       i,
			Question: fmt.Sprintf("Pregunta %d", i),
			Options:  map[string]string{"A": "uno", "B": "dos", "C": "tres", "D": "cuatro"},
			Correct:  "B",
		})
	}
	require.NoError(t, store.ReplaceQuestions(context.Background(), questions))

	questionService := services.NewQuestionService(store)
	locks := services.NewDuelLocks()
	ledger := services.NewScoreLedger(store)
	turns := services.NewTurnScheduler(store, questionService)
	registry := services.NewRegistryService(store, questionService, locks, nil, models.DefaultWinThreshold)
	matches := services.NewMatchService(store, questionService, ledger, turns, locks, nil)
	publisher := &recordingPublisher{}

	router := &Router{
		Questions: NewQuestionHandler(questionService, store, "answers.json"),
		Duels:     NewDuelHandler(registry, matches, publisher),
		Metrics:   metrics.Handler(),
	}

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: router.Handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &testServer{
		mr:        mr,
		publisher: publisher,
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
		},
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://trivia.test" + path)
	req.Header.SetMethod(method)
	switch b := body.(type) {
	case nil:
	case string:
		req.SetBodyString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		req.SetBody(payload)
	}

	require.NoError(t, s.client.Do(req, resp))

	var out apiResponse
	if strings.HasPrefix(string(resp.Header.ContentType()), "application/json") {
		require.NoError(t, json.Unmarshal(resp.Body(), &out))
	} else {
		out.Data = append(json.RawMessage(nil), resp.Body()...)
	}
	return resp.StatusCode(), out
}

func duelFrom(t *testing.T, resp apiResponse) models.DuelResponse {
	t.Helper()
	var out models.DuelResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestDuelFlow(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, "POST", "/api/duels", models.DuelCreateRequest{UserID: "alice", Username: "Alice"})
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	created := duelFrom(t, resp).Duel
	require.NotNil(t, created)
	assert.Equal(t, models.StateWaitingForOpponent, created.State)

	status, resp = s.do(t, "POST", "/api/duels/join", models.DuelJoinRequest{
		UserID: "bob", Username: "Bob", RoomCode: strings.ToLower(created.Duel.RoomCode),
	})
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	joined := duelFrom(t, resp).Duel
	assert.Equal(t, models.StateInProgress, joined.State)
	assert.Equal(t, "alice", joined.TurnUserID)

	answerPath := "/api/duels/" + created.Duel.ID + "/answer"
	status, resp = s.do(t, "POST", answerPath, map[string]interface{}{"userId": "alice", "timeTaken": 3, "isCorrect": true, "sequence": 1})
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	assert.Equal(t, "bob", duelFrom(t, resp).Duel.TurnUserID)

	status, resp = s.do(t, "POST", answerPath, map[string]interface{}{"userId": "bob", "timeTaken": 2, "selectedOption": "a"})
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	after := duelFrom(t, resp).Duel
	assert.Equal(t, "alice", after.TurnUserID)
	alice, ok := after.Participant("alice")
	require.True(t, ok)
	assert.Equal(t, 1, alice.Score)

	status, resp = s.do(t, "GET", "/api/duels/"+created.Duel.ID+"/rounds", nil)
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	rounds := duelFrom(t, resp).Rounds
	require.Len(t, rounds, 1)
	assert.True(t, rounds[0].Complete)
	assert.Equal(t, "alice", rounds[0].WinnerID)

	status, resp = s.do(t, "GET", "/api/duels/"+created.Duel.ID, nil)
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	assert.Equal(t, 2, duelFrom(t, resp).Duel.Round)

	status, resp = s.do(t, "POST", "/api/duels/"+created.Duel.ID+"/leave", models.DuelLeaveRequest{UserID: "bob"})
	require.Equal(t, fasthttp.StatusOK, status, resp.Error)
	assert.True(t, duelFrom(t, resp).Duel.Abandoned)

	// join, dos respuestas y leave publican estado
	assert.Equal(t, 4, s.publisher.Len())
}

func TestDuelErrors(t *testing.T) {
	s := newTestServer(t)

	_, resp := s.do(t, "POST", "/api/duels", models.DuelCreateRequest{UserID: "alice"})
	duelID := duelFrom(t, resp).Duel.Duel.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"json inválido", "POST", "/api/duels", "{", fasthttp.StatusBadRequest, "validation"},
		{"crear sin usuario", "POST", "/api/duels", models.DuelCreateRequest{}, fasthttp.StatusBadRequest, "validation"},
		{"sala desconocida", "POST", "/api/duels/join", models.DuelJoinRequest{UserID: "bob", RoomCode: "ZZZZZZ"}, fasthttp.StatusNotFound, "not_found"},
		{"duelo desconocido", "GET", "/api/duels/nope", nil, fasthttp.StatusNotFound, "not_found"},
		{"responder sin oponente", "POST", "/api/duels/" + duelID + "/answer", map[string]interface{}{"userId": "alice", "timeTaken": 1}, fasthttp.StatusConflict, "conflict"},
		{"tiempo negativo", "POST", "/api/duels/" + duelID + "/answer", map[string]interface{}{"userId": "alice", "timeTaken": -1}, fasthttp.StatusBadRequest, "validation"},
		{"abandonar sin participar", "POST", "/api/duels/" + duelID + "/leave", models.DuelLeaveRequest{UserID: "mallory"}, fasthttp.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, resp.Error)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}
}

func TestQuestionRoutes(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, "GET", "/api/questions", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var list models.QuestionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Equal(t, 3, list.Count)

	status, resp = s.do(t, "GET", "/api/questions/2", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var one models.QuestionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &one))
	assert.Equal(t, 2, one.Question.ID)

	status, _ = s.do(t, "GET", "/api/questions/random", nil)
	assert.Equal(t, fasthttp.StatusOK, status)

	status, _ = s.do(t, "GET", "/api/questions/abc", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, resp = s.do(t, "GET", "/api/questions/99", nil)
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, "not_found", resp.Kind)

	status, resp = s.do(t, "POST", "/api/questions/reload", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "validation", resp.Kind)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, "GET", "/api/health", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(resp.Data), `"status":"healthy"`)

	status, resp = s.do(t, "GET", "/metrics", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(resp.Data), "trivia_duel_duels_created_total")

	s.mr.Close()
	status, _ = s.do(t, "GET", "/api/health", nil)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
}

func TestUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/", "/api/duels/", "/api/duels/x/y/z", "/api/unknown"} {
		status, resp := s.do(t, "GET", path, nil)
		assert.Equal(t, fasthttp.StatusNotFound, status, path)
		assert.False(t, resp.Success)
	}

	status, _ := s.do(t, "OPTIONS", "/api/duels", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
}

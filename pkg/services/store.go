package services

import (
	"context"
	"time"

	"github.com/backsoul/trivia-duel/pkg/models"
)

// DuelStore es la pasarela de persistencia de duelos. Cada operación es atómica
// por sí misma; las escrituras sensibles a carreras devuelven errores conflict
// de pkg/errs en lugar de escribir dos veces.
type DuelStore interface {
	// CreateDuel guarda el duelo y a su creador. Devuelve errs.ErrRoomCodeTaken
	// si el código de sala ya existe.
	CreateDuel(ctx context.Context, duel *models.Duel, creator *models.Participant) error
	GetDuel(ctx context.Context, duelID string) (*models.Duel, error)
	GetDuelByRoomCode(ctx context.Context, roomCode string) (*models.Duel, error)
	SetCurrentQuestion(ctx context.Context, duelID string, questionID int) error
	// CompleteDuel desactiva el duelo y limpia los turnos; errs.ErrDuelCompleted
	// si ya estaba inactivo.
	CompleteDuel(ctx context.Context, duelID, winnerID string, at time.Time) error
	ListStaleLobbies(ctx context.Context, createdBefore time.Time) ([]string, error)
	// ExpireLobby desactiva un duelo que sigue esperando oponente;
	// errs.ErrNotLobby en cualquier otro caso.
	ExpireLobby(ctx context.Context, duelID string, at time.Time) error

	// AddParticipant devuelve errs.ErrAlreadyJoined o errs.ErrDuelFull.
	AddParticipant(ctx context.Context, p *models.Participant) error
	// ListParticipants devuelve los participantes en orden de llegada.
	ListParticipants(ctx context.Context, duelID string) ([]models.Participant, error)
	MarkLeft(ctx context.Context, duelID, userID string) error
	// SetTurn da el turno a userID y se lo quita al resto. Con userID vacío
	// limpia todos los turnos.
	SetTurn(ctx context.Context, duelID, userID string) error

	// AppendAnswer inserta la respuesta, avanza el contador del participante y
	// le quita el turno. La secuencia debe ser exactamente AnswerCount+1 (si ya
	// existe, errs.ErrDuplicateAnswer) y el participante debe tener el turno
	// (errs.ErrNotYourTurn).
	AppendAnswer(ctx context.Context, answer *models.Answer) error
	GetAnswer(ctx context.Context, duelID, userID string, sequence int) (*models.Answer, error)
	ListAnswers(ctx context.Context, duelID string) ([]models.Answer, error)
	// RecordRound consume la ronda y suma un punto a winnerID si no está vacío.
	// errs.ErrRoundResolved si la ronda ya se había consumido.
	RecordRound(ctx context.Context, duelID string, round int, winnerID string) error

	Ping(ctx context.Context) error
}

// QuestionStore guarda el banco de preguntas
type QuestionStore interface {
	ReplaceQuestions(ctx context.Context, questions []models.Question) error
	GetQuestion(ctx context.Context, id int) (*models.Question, error)
	ListQuestions(ctx context.Context) ([]models.Question, error)
	// RandomQuestion elige al azar excluyendo excludeID salvo que sea la única.
	RandomQuestion(ctx context.Context, excludeID int) (*models.Question, error)
	CountQuestions(ctx context.Context) (int, error)
}

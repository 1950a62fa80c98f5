package services

import (
	"context"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
)

// TurnChange describe a quién pasó el turno y con qué pregunta
type TurnChange struct {
	Recipient models.Participant
	Question  *models.Question
}

// TurnScheduler decide a quién le toca y qué pregunta ve
type TurnScheduler struct {
	store     DuelStore
	questions *QuestionService
}

func NewTurnScheduler(store DuelStore, questions *QuestionService) *TurnScheduler {
	return &TurnScheduler{store: store, questions: questions}
}

// PassTurn entrega el turno al oponente sin cambiar la pregunta, para que
// ambos respondan la misma en la ronda abierta.
func (t *TurnScheduler) PassTurn(ctx context.Context, duelID, lastAnswererID string) (*TurnChange, error) {
	opponent, err := t.opponentOf(ctx, duelID, lastAnswererID)
	if err != nil {
		return nil, err
	}
	if err := t.setTurn(ctx, duelID, opponent.UserID); err != nil {
		return nil, err
	}
	opponent.HasTurn = true
	return &TurnChange{Recipient: *opponent}, nil
}

// AdvanceTurn entrega el turno al oponente de lastAnswererID y asigna una
// pregunta nueva, distinta de la actual salvo que el banco tenga solo una.
func (t *TurnScheduler) AdvanceTurn(ctx context.Context, duelID, lastAnswererID string) (*TurnChange, error) {
	duel, err := t.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if !duel.Active {
		return nil, errs.ErrDuelCompleted
	}

	opponent, err := t.opponentOf(ctx, duelID, lastAnswererID)
	if err != nil {
		return nil, err
	}

	question, err := t.questions.PickQuestion(ctx, duel.CurrentQuestionID)
	if err != nil {
		return nil, err
	}
	err = retryUpstream(ctx, func() error {
		return t.store.SetCurrentQuestion(ctx, duelID, question.ID)
	})
	if err != nil {
		return nil, err
	}
	if err := t.setTurn(ctx, duelID, opponent.UserID); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"duel":     duelID,
		"turn":     opponent.UserID,
		"question": question.ID,
	}).Debug("🔁 Turno avanzado")

	opponent.HasTurn = true
	return &TurnChange{Recipient: *opponent, Question: question}, nil
}

// awaitingOpeningTurn indica un duelo completo en el que nadie recibió aún el
// primer turno, normalmente porque falló la escritura al unirse el rival.
func awaitingOpeningTurn(duel *models.Duel, participants []models.Participant) bool {
	if !duel.Active || duel.ResolvedRounds > 0 || len(participants) < models.Capacity {
		return false
	}
	for _, p := range participants {
		if p.HasTurn || p.AnswerCount > 0 {
			return false
		}
	}
	return true
}

// OpeningTurn da el primer turno al creador cuando el duelo ya tiene rival
func (t *TurnScheduler) OpeningTurn(ctx context.Context, duel *models.Duel) error {
	return t.setTurn(ctx, duel.ID, duel.CreatorID)
}

func (t *TurnScheduler) setTurn(ctx context.Context, duelID, userID string) error {
	return retryUpstream(ctx, func() error {
		return t.store.SetTurn(ctx, duelID, userID)
	})
}

func (t *TurnScheduler) opponentOf(ctx context.Context, duelID, userID string) (*models.Participant, error) {
	participants, err := t.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.UserID != userID {
			return &p, nil
		}
	}
	return nil, errs.ErrOpponentNotFound
}

package services

import (
	"context"

	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
)

// loadSnapshot arma la vista de lectura del duelo
func loadSnapshot(ctx context.Context, store DuelStore, questions *QuestionService, duelID string) (*models.DuelSnapshot, error) {
	duel, err := store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	participants, err := store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.DuelSnapshot{
		Duel:         *duel,
		State:        models.StateOf(*duel, len(participants)),
		Participants: participants,
		Round:        duel.ResolvedRounds,
	}
	if duel.Active {
		snapshot.Round++
	}
	for _, p := range participants {
		if p.Left {
			snapshot.Abandoned = true
		}
		if p.HasTurn {
			snapshot.TurnUserID = p.UserID
		}
	}

	if duel.CurrentQuestionID != 0 && questions != nil {
		question, err := questions.GetQuestion(ctx, duel.CurrentQuestionID)
		if err != nil {
			log.WithError(err).WithField("duel", duelID).Warn("⚠️ Pregunta actual no disponible")
		} else {
			snapshot.CurrentQuestion = question
		}
	}

	return snapshot, nil
}

// buildRounds empareja la N-ésima respuesta de cada participante
func buildRounds(participants []models.Participant, answers []models.Answer) []models.Round {
	bySeq := make(map[int][]models.Answer)
	maxSeq := 0
	for _, a := range answers {
		bySeq[a.Sequence] = append(bySeq[a.Sequence], a)
		if a.Sequence > maxSeq {
			maxSeq = a.Sequence
		}
	}

	order := make(map[string]int, len(participants))
	for i, p := range participants {
		order[p.UserID] = i
	}

	rounds := make([]models.Round, 0, maxSeq)
	for seq := 1; seq <= maxSeq; seq++ {
		pair := bySeq[seq]
		// el orden de llegada de los jugadores fija A y B
		if len(pair) == 2 && order[pair[0].UserID] > order[pair[1].UserID] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		round := models.Round{Number: seq, Answers: pair, Complete: len(pair) == 2}
		if round.Complete {
			round.WinnerID = roundWinner(pair[0], pair[1])
		}
		rounds = append(rounds, round)
	}
	return rounds
}

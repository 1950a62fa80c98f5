package services

import (
	"context"
	"errors"

	"github.com/backsoul/trivia-duel/pkg/errs"
)

// LedgerReport es el estado del marcador después de aplicar una ronda
type LedgerReport struct {
	Round            int
	Applied          bool
	RoundWinnerID    string
	Scores           map[string]int
	Leader           string // vacío si hay empate
	ThresholdReached bool
	MatchWinnerID    string
}

// ScoreLedger acumula las victorias de cada participante
type ScoreLedger struct {
	store DuelStore
}

func NewScoreLedger(store DuelStore) *ScoreLedger {
	return &ScoreLedger{store: store}
}

// ApplyRound consume la ronda y suma un punto a winnerID. La ronda se
// identifica por la secuencia de las respuestas que la forman, así que
// aplicarla dos veces no cambia el marcador: la segunda llamada devuelve un
// reporte con Applied=false.
func (l *ScoreLedger) ApplyRound(ctx context.Context, duelID string, round int, winnerID string) (*LedgerReport, error) {
	if round < 1 {
		return nil, errs.Validation("ronda %d inválida", round)
	}

	applied := true
	err := retryUpstream(ctx, func() error {
		return l.store.RecordRound(ctx, duelID, round, winnerID)
	})
	if err != nil {
		if !errors.Is(err, errs.ErrRoundResolved) {
			return nil, err
		}
		applied = false
	}

	report, err := l.Report(ctx, duelID)
	if err != nil {
		return nil, err
	}
	report.Round = round
	report.Applied = applied
	if applied {
		report.RoundWinnerID = winnerID
	}
	return report, nil
}

// Report lee el marcador actual del duelo
func (l *ScoreLedger) Report(ctx context.Context, duelID string) (*LedgerReport, error) {
	duel, err := l.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	participants, err := l.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, err
	}

	report := &LedgerReport{Scores: make(map[string]int, len(participants))}
	best := -1
	for _, p := range participants {
		report.Scores[p.UserID] = p.Score
		switch {
		case p.Score > best:
			best = p.Score
			report.Leader = p.UserID
		case p.Score == best:
			report.Leader = ""
		}
		if p.Score >= duel.WinThreshold && report.MatchWinnerID == "" {
			report.ThresholdReached = true
			report.MatchWinnerID = p.UserID
		}
	}
	return report, nil
}

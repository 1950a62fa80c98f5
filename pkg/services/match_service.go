package services

import (
	"context"
	"errors"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
)

// MatchService es dueño de la máquina de estados del duelo:
// WAITING_FOR_OPPONENT -> IN_PROGRESS -> COMPLETED. Cada respuesta pasa por
// resolver, marcador y turnos bajo el lock del duelo.
type MatchService struct {
	store      DuelStore
	questions  *QuestionService
	ledger     *ScoreLedger
	turns      *TurnScheduler
	locks      *DuelLocks
	dispatcher *Dispatcher

	now func() time.Time
}

// NewMatchService crea una nueva instancia del servicio
func NewMatchService(store DuelStore, questions *QuestionService, ledger *ScoreLedger, turns *TurnScheduler, locks *DuelLocks, dispatcher *Dispatcher) *MatchService {
	return &MatchService{
		store:      store,
		questions:  questions,
		ledger:     ledger,
		turns:      turns,
		locks:      locks,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// SubmitAnswer registra la respuesta de userID a la pregunta actual
func (s *MatchService) SubmitAnswer(ctx context.Context, duelID, userID string, sub models.AnswerSubmission) (*models.DuelSnapshot, error) {
	if duelID == "" || userID == "" {
		return nil, errs.Validation("duelId y userId son requeridos")
	}
	if sub.TimeTaken < 0 {
		return nil, errs.Validation("timeTaken no puede ser negativo")
	}
	if sub.Sequence < 0 {
		return nil, errs.Validation("sequence no puede ser negativa")
	}
	if sub.SelectedOption != "" && !validOption(sub.SelectedOption) {
		return nil, errs.Validation("opción %q inválida", sub.SelectedOption)
	}

	// las notificaciones salen después de soltar el lock
	var outbox []func()
	defer func() {
		for _, send := range outbox {
			send()
		}
	}()

	unlock := s.locks.Lock(duelID)
	defer unlock()

	snapshot, err := s.submit(ctx, duelID, userID, sub, &outbox)
	if err != nil {
		metrics.AnswersSubmitted.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return snapshot, nil
}

func (s *MatchService) submit(ctx context.Context, duelID, userID string, sub models.AnswerSubmission, outbox *[]func()) (*models.DuelSnapshot, error) {
	duel, participants, err := s.load(ctx, duelID)
	if err != nil {
		return nil, err
	}

	settled, err := s.settle(ctx, duel, participants, outbox)
	if err != nil {
		return nil, err
	}
	if settled.changed {
		if settled.answererID == userID {
			// reintento de una respuesta que ya estaba guardada
			return loadSnapshot(ctx, s.store, s.questions, duelID)
		}
		if duel, participants, err = s.load(ctx, duelID); err != nil {
			return nil, err
		}
	}

	var me, opponent *models.Participant
	for i := range participants {
		if participants[i].UserID == userID {
			me = &participants[i]
		} else {
			opponent = &participants[i]
		}
	}
	if me == nil {
		return nil, errs.ErrParticipantNotFound
	}
	if opponent == nil {
		return nil, errs.ErrOpponentNotFound
	}
	if me.Left {
		return nil, errs.Conflict("el usuario abandonó el duelo")
	}
	if !me.HasTurn {
		return nil, errs.ErrNotYourTurn
	}

	sequence := me.AnswerCount + 1
	if sub.Sequence != 0 && sub.Sequence != sequence {
		if sub.Sequence < sequence {
			return nil, errs.ErrDuplicateAnswer
		}
		return nil, errs.Conflict("secuencia %d fuera de orden, se esperaba %d", sub.Sequence, sequence)
	}

	isCorrect := sub.IsCorrect
	if sub.SelectedOption != "" {
		question, err := s.questions.GetQuestion(ctx, duel.CurrentQuestionID)
		if err != nil {
			return nil, err
		}
		isCorrect = question.Correct == sub.SelectedOption
	}

	answer := &models.Answer{
		DuelID:         duelID,
		UserID:         userID,
		Sequence:       sequence,
		QuestionID:     duel.CurrentQuestionID,
		SelectedOption: sub.SelectedOption,
		TimeTaken:      sub.TimeTaken,
		IsCorrect:      isCorrect,
		SubmittedAt:    s.now().UTC(),
	}
	if err := s.store.AppendAnswer(ctx, answer); err != nil {
		return nil, err
	}
	if isCorrect {
		metrics.AnswersSubmitted.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersSubmitted.WithLabelValues("incorrect").Inc()
	}

	// A partir de aquí la respuesta ya está guardada y nadie tiene el turno.
	// Si algo falla, el siguiente SubmitAnswer del duelo retoma el paso.
	if err := s.afterAnswer(ctx, duel, participants, *me, sequence, outbox); err != nil {
		return nil, err
	}
	return loadSnapshot(ctx, s.store, s.questions, duelID)
}

func (s *MatchService) load(ctx context.Context, duelID string) (*models.Duel, []models.Participant, error) {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, nil, err
	}

	switch models.StateOf(*duel, len(participants)) {
	case models.StateCompleted:
		return nil, nil, errs.ErrDuelCompleted
	case models.StateWaitingForOpponent, models.StateExpired:
		return nil, nil, errs.ErrDuelNotInProgress
	}
	return duel, participants, nil
}

// settlement describe lo que settle tuvo que completar
type settlement struct {
	changed    bool
	answererID string // dueño de la respuesta cuyo paso se completó
}

// settle completa la transición que una escritura fallida dejó a medias: un
// duelo en curso en el que nadie tiene el turno.
func (s *MatchService) settle(ctx context.Context, duel *models.Duel, participants []models.Participant, outbox *[]func()) (settlement, error) {
	for _, p := range participants {
		if p.HasTurn {
			return settlement{}, nil
		}
	}

	a, b := participants[0], participants[1]
	logger := log.WithFields(log.Fields{"duel": duel.ID, "answers": []int{a.AnswerCount, b.AnswerCount}})

	switch {
	case awaitingOpeningTurn(duel, participants):
		logger.Warn("⚠️ Duelo sin turno inicial, repartiendo")
		if err := s.turns.OpeningTurn(ctx, duel); err != nil {
			return settlement{}, err
		}
		s.queueTurn(outbox, duel.CreatorID, duel, b.DisplayName())
		return settlement{changed: true}, nil

	case a.AnswerCount != b.AnswerCount:
		ahead := a
		if b.AnswerCount > a.AnswerCount {
			ahead = b
		}
		logger.Warn("⚠️ Ronda abierta sin turno, retomando")
		if err := s.afterAnswer(ctx, duel, participants, ahead, ahead.AnswerCount, outbox); err != nil {
			return settlement{}, err
		}
		return settlement{changed: true, answererID: ahead.UserID}, nil

	case a.AnswerCount > 0:
		logger.Warn("⚠️ Ronda completa sin turno, retomando")
		first, second, err := s.roundAnswers(ctx, duel.ID, participants, a.AnswerCount)
		if err != nil {
			return settlement{}, err
		}
		if err := s.closeRound(ctx, duel, participants, first, second, outbox); err != nil {
			return settlement{}, err
		}
		return settlement{changed: true, answererID: completerOf(first, second).UserID}, nil
	}
	return settlement{}, nil
}

// afterAnswer pasa el turno si la ronda sigue abierta o la cierra si el
// oponente ya respondió la misma secuencia
func (s *MatchService) afterAnswer(ctx context.Context, duel *models.Duel, participants []models.Participant, answerer models.Participant, sequence int, outbox *[]func()) error {
	opponent := participants[0]
	if opponent.UserID == answerer.UserID {
		opponent = participants[1]
	}

	if opponent.AnswerCount < sequence {
		// ronda abierta: el oponente responde la misma pregunta
		change, err := s.turns.PassTurn(ctx, duel.ID, answerer.UserID)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"duel": duel.ID, "user": answerer.UserID, "round": sequence}).Debug("📝 Respuesta registrada, turno del oponente")
		s.queueTurn(outbox, change.Recipient.UserID, duel, answerer.DisplayName())
		return nil
	}

	first, second, err := s.roundAnswers(ctx, duel.ID, participants, sequence)
	if err != nil {
		return err
	}
	return s.closeRound(ctx, duel, participants, first, second, outbox)
}

// roundAnswers devuelve las dos respuestas de la ronda en orden de llegada de
// los participantes al duelo
func (s *MatchService) roundAnswers(ctx context.Context, duelID string, participants []models.Participant, round int) (*models.Answer, *models.Answer, error) {
	first, err := s.store.GetAnswer(ctx, duelID, participants[0].UserID, round)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.store.GetAnswer(ctx, duelID, participants[1].UserID, round)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

// completerOf es la respuesta que cerró la ronda
func completerOf(a, b *models.Answer) *models.Answer {
	if a.ID > b.ID {
		return a
	}
	return b
}

// closeRound aplica la ronda al marcador y termina el duelo o avanza el turno
func (s *MatchService) closeRound(ctx context.Context, duel *models.Duel, participants []models.Participant, a, b *models.Answer, outbox *[]func()) error {
	round := a.Sequence
	completer := completerOf(a, b)
	logger := log.WithFields(log.Fields{"duel": duel.ID, "round": round})

	var report *LedgerReport
	if duel.ResolvedRounds < round {
		outcome := ResolveRound(*a, *b)
		winnerID := roundWinner(*a, *b)

		applied, err := s.ledger.ApplyRound(ctx, duel.ID, round, winnerID)
		if err != nil {
			return err
		}
		if applied.Applied {
			metrics.RoundsResolved.WithLabelValues(outcome.String()).Inc()
			logger.WithFields(log.Fields{"winner": winnerID, "scores": applied.Scores}).Info("🏁 Ronda resuelta")
		} else {
			logger.Warn("⚠️ Ronda ya resuelta por otra petición")
			held, err := s.turnHeld(ctx, duel.ID)
			if err != nil || held {
				return err
			}
		}
		report = applied
	} else {
		current, err := s.ledger.Report(ctx, duel.ID)
		if err != nil {
			return err
		}
		report = current
	}

	if report.ThresholdReached {
		return s.complete(ctx, duel, participants, report, outbox)
	}

	change, err := s.turns.AdvanceTurn(ctx, duel.ID, completer.UserID)
	if err != nil {
		return err
	}
	s.queueTurn(outbox, change.Recipient.UserID, duel, displayOf(participants, completer.UserID))
	return nil
}

func (s *MatchService) turnHeld(ctx context.Context, duelID string) (bool, error) {
	participants, err := s.store.ListParticipants(ctx, duelID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.HasTurn {
			return true, nil
		}
	}
	return false, nil
}

// complete cierra el duelo y encola el aviso de resultado una sola vez
func (s *MatchService) complete(ctx context.Context, duel *models.Duel, participants []models.Participant, report *LedgerReport, outbox *[]func()) error {
	completedAt := s.now().UTC()
	err := retryUpstream(ctx, func() error {
		return s.store.CompleteDuel(ctx, duel.ID, report.MatchWinnerID, completedAt)
	})
	if errors.Is(err, errs.ErrDuelCompleted) {
		return nil
	}
	if err != nil {
		return err
	}

	result := models.MatchResult{DuelID: duel.ID}
	for _, p := range participants {
		if p.UserID == report.MatchWinnerID {
			result.WinnerID = p.UserID
			result.WinnerName = p.DisplayName()
			result.WinnerScore = report.Scores[p.UserID]
		} else {
			result.LoserID = p.UserID
			result.LoserName = p.DisplayName()
			result.LoserScore = report.Scores[p.UserID]
		}
	}

	metrics.MatchesCompleted.Inc()
	log.WithFields(log.Fields{
		"duel":   duel.ID,
		"winner": result.WinnerID,
		"score":  result.WinnerScore,
		"loser":  result.LoserScore,
	}).Info("🏆 Duelo terminado")

	*outbox = append(*outbox, func() { s.dispatcher.MatchResult(result) })
	return nil
}

func (s *MatchService) queueTurn(outbox *[]func(), recipientID string, duel *models.Duel, acting string) {
	duelID, roomCode := duel.ID, duel.RoomCode
	*outbox = append(*outbox, func() { s.dispatcher.Turn(recipientID, duelID, roomCode, acting) })
}

func displayOf(participants []models.Participant, userID string) string {
	for _, p := range participants {
		if p.UserID == userID {
			return p.DisplayName()
		}
	}
	return userID
}

func validOption(option string) bool {
	for _, key := range models.OptionKeys {
		if key == option {
			return true
		}
	}
	return false
}

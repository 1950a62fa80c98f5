package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// RoomCodeAlphabet omite 0/O, 1/I
	RoomCodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	RoomCodeLength     = 6
	roomCodeMaxRetries = 10
)

// NewRoomCode genera un código de sala aleatorio
func NewRoomCode() string {
	var b strings.Builder
	b.Grow(RoomCodeLength)
	for i := 0; i < RoomCodeLength; i++ {
		b.WriteByte(RoomCodeAlphabet[rand.Intn(len(RoomCodeAlphabet))])
	}
	return b.String()
}

// RegistryService crea duelos y gestiona quién entra y quién sale
type RegistryService struct {
	store        DuelStore
	questions    *QuestionService
	turns        *TurnScheduler
	locks        *DuelLocks
	dispatcher   *Dispatcher
	winThreshold int

	now       func() time.Time
	codeGen   func() string
	newDuelID func() string
}

// NewRegistryService crea una nueva instancia del servicio
func NewRegistryService(store DuelStore, questions *QuestionService, locks *DuelLocks, dispatcher *Dispatcher, winThreshold int) *RegistryService {
	if winThreshold <= 0 {
		winThreshold = models.DefaultWinThreshold
	}
	return &RegistryService{
		store:        store,
		questions:    questions,
		turns:        NewTurnScheduler(store, questions),
		locks:        locks,
		dispatcher:   dispatcher,
		winThreshold: winThreshold,
		now:          time.Now,
		codeGen:      NewRoomCode,
		newDuelID:    func() string { return uuid.New().String() },
	}
}

// CreateDuel registra un duelo nuevo con userID como único participante
func (s *RegistryService) CreateDuel(ctx context.Context, userID, username string) (*models.DuelSnapshot, error) {
	if userID == "" {
		return nil, errs.Validation("userId es requerido")
	}

	question, err := s.questions.PickQuestion(ctx, 0)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	duelID := s.newDuelID()
	creator := &models.Participant{
		DuelID:   duelID,
		UserID:   userID,
		Username: username,
		JoinedAt: now,
	}

	for attempt := 0; attempt < roomCodeMaxRetries; attempt++ {
		duel := &models.Duel{
			ID:                duelID,
			RoomCode:          s.codeGen(),
			CreatorID:         userID,
			CreatedAt:         now,
			Active:            true,
			CurrentQuestionID: question.ID,
			WinThreshold:      s.winThreshold,
		}

		err := s.store.CreateDuel(ctx, duel, creator)
		if errors.Is(err, errs.ErrRoomCodeTaken) {
			log.WithField("room", duel.RoomCode).Debug("código de sala en uso, reintentando")
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.DuelsCreated.Inc()
		log.WithFields(log.Fields{
			"duel":    duelID,
			"room":    duel.RoomCode,
			"creator": userID,
		}).Info("🆕 Duelo creado")
		return loadSnapshot(ctx, s.store, s.questions, duelID)
	}

	return nil, errs.Conflict("no se pudo asignar un código de sala tras %d intentos", roomCodeMaxRetries)
}

// JoinDuel agrega a userID al duelo de roomCode. Unirse dos veces devuelve
// el estado actual sin cambios.
func (s *RegistryService) JoinDuel(ctx context.Context, userID, username, roomCode string) (*models.DuelSnapshot, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))
	if userID == "" || code == "" {
		return nil, errs.Validation("userId y roomCode son requeridos")
	}

	found, err := s.store.GetDuelByRoomCode(ctx, code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(found.ID)
	joined, notify, err := s.join(ctx, found.ID, userID, username)
	unlock()
	if err != nil {
		return nil, err
	}
	if joined != nil && notify {
		s.dispatcher.Turn(joined.Duel.CreatorID, joined.Duel.ID, joined.Duel.RoomCode, displayName(username, userID))
	}
	return joined, nil
}

func (s *RegistryService) join(ctx context.Context, duelID, userID, username string) (*models.DuelSnapshot, bool, error) {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, false, err
	}
	participants, err := s.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, false, err
	}

	for _, p := range participants {
		if p.UserID == userID {
			return s.rejoin(ctx, duel, participants)
		}
	}

	switch models.StateOf(*duel, len(participants)) {
	case models.StateCompleted:
		return nil, false, errs.ErrDuelCompleted
	case models.StateExpired:
		return nil, false, errs.ErrNotLobby
	case models.StateInProgress:
		return nil, false, errs.ErrDuelFull
	}

	err = s.store.AddParticipant(ctx, &models.Participant{
		DuelID:   duelID,
		UserID:   userID,
		Username: username,
		JoinedAt: s.now().UTC(),
	})
	if errors.Is(err, errs.ErrAlreadyJoined) {
		participants, err := s.store.ListParticipants(ctx, duelID)
		if err != nil {
			return nil, false, err
		}
		return s.rejoin(ctx, duel, participants)
	}
	if err != nil {
		return nil, false, err
	}

	notify := false
	if len(participants)+1 == models.Capacity {
		if err := s.turns.OpeningTurn(ctx, duel); err != nil {
			return nil, false, err
		}
		notify = true
		metrics.DuelsJoined.Inc()
		log.WithFields(log.Fields{"duel": duelID, "user": userID}).Info("🤝 Oponente unido, el duelo comienza")
	}

	snapshot, err := loadSnapshot(ctx, s.store, s.questions, duelID)
	return snapshot, notify, err
}

// rejoin atiende a un usuario que ya estaba en el duelo. Si su primera unión
// se quedó sin repartir el turno inicial, lo reparte ahora.
func (s *RegistryService) rejoin(ctx context.Context, duel *models.Duel, participants []models.Participant) (*models.DuelSnapshot, bool, error) {
	notify := false
	if awaitingOpeningTurn(duel, participants) {
		if err := s.turns.OpeningTurn(ctx, duel); err != nil {
			return nil, false, err
		}
		notify = true
		log.WithField("duel", duel.ID).Warn("⚠️ Turno inicial repartido al reintentar la unión")
	}

	snapshot, err := loadSnapshot(ctx, s.store, s.questions, duel.ID)
	return snapshot, notify, err
}

// LeaveDuel marca a userID como retirado. El duelo no termina: el snapshot
// devuelto lo señala como abandonado. Si el creador abandona una sala que
// aún espera oponente, la sala se cierra.
func (s *RegistryService) LeaveDuel(ctx context.Context, userID, duelID string) (*models.DuelSnapshot, error) {
	if userID == "" || duelID == "" {
		return nil, errs.Validation("userId y duelId son requeridos")
	}

	unlock := s.locks.Lock(duelID)
	defer unlock()

	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkLeft(ctx, duelID, userID); err != nil {
		return nil, err
	}

	if models.StateOf(*duel, len(participants)) == models.StateWaitingForOpponent && duel.CreatorID == userID {
		if err := s.store.ExpireLobby(ctx, duelID, s.now().UTC()); err != nil && !errors.Is(err, errs.ErrNotLobby) {
			return nil, err
		}
	}

	log.WithFields(log.Fields{"duel": duelID, "user": userID}).Info("🚪 Participante abandonó el duelo")
	return loadSnapshot(ctx, s.store, s.questions, duelID)
}

// GetDuel devuelve el estado actual del duelo
func (s *RegistryService) GetDuel(ctx context.Context, duelID string) (*models.DuelSnapshot, error) {
	return loadSnapshot(ctx, s.store, s.questions, duelID)
}

// Rounds devuelve el historial de rondas del duelo
func (s *RegistryService) Rounds(ctx context.Context, duelID string) ([]models.Round, error) {
	participants, err := s.store.ListParticipants(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		if _, err := s.store.GetDuel(ctx, duelID); err != nil {
			return nil, err
		}
	}
	answers, err := s.store.ListAnswers(ctx, duelID)
	if err != nil {
		return nil, err
	}
	return buildRounds(participants, answers), nil
}

func displayName(username, userID string) string {
	return models.Participant{UserID: userID, Username: username}.DisplayName()
}

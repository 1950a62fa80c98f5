// Package postgres implementa los stores de duelos y preguntas sobre
// PostgreSQL con GORM. Las escrituras con carreras usan SELECT ... FOR UPDATE,
// UPDATE condicionales e índices únicos.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implementa services.DuelStore y services.QuestionStore
type Store struct {
	db *gorm.DB
}

// Open conecta a PostgreSQL y migra el esquema
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errs.Upstream(err, "error conectando a PostgreSQL")
	}

	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Info("✅ Conexión exitosa a PostgreSQL")
	return store, nil
}

// New envuelve una conexión GORM ya abierta
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate crea o actualiza las tablas
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.Question{},
		&models.Duel{},
		&models.Participant{},
		&models.Answer{},
	)
	return errs.Upstream(err, "error migrando esquema")
}

// Close cierra el pool de conexiones
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifica que la base de datos responda
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Upstream(err, "postgres health check failed")
	}
	return errs.Upstream(sqlDB.PingContext(ctx), "postgres health check failed")
}

// translate convierte errores de GORM en la taxonomía de errs
func translate(err error, notFound error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	default:
		return errs.Upstream(err, message)
	}
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CreateDuel guarda el duelo y a su creador en una transacción
func (s *Store) CreateDuel(ctx context.Context, duel *models.Duel, creator *models.Participant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(duel).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrRoomCodeTaken
			}
			return errs.Upstream(err, "error guardando duelo")
		}
		if err := tx.Create(creator).Error; err != nil {
			return errs.Upstream(err, "error guardando creador")
		}
		return nil
	})
}

func (s *Store) GetDuel(ctx context.Context, duelID string) (*models.Duel, error) {
	var duel models.Duel
	err := s.db.WithContext(ctx).Where("id = ?", duelID).First(&duel).Error
	if err != nil {
		return nil, translate(err, errs.ErrDuelNotFound, "error obteniendo duelo")
	}
	return &duel, nil
}

func (s *Store) GetDuelByRoomCode(ctx context.Context, roomCode string) (*models.Duel, error) {
	var duel models.Duel
	err := s.db.WithContext(ctx).Where("room_code = ?", roomCode).First(&duel).Error
	if err != nil {
		return nil, translate(err, errs.ErrRoomNotFound, "error resolviendo código de sala")
	}
	return &duel, nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, duelID string, questionID int) error {
	res := s.db.WithContext(ctx).Model(&models.Duel{}).
		Where("id = ?", duelID).
		Update("current_question_id", questionID)
	if res.Error != nil {
		return errs.Upstream(res.Error, "error asignando pregunta")
	}
	if res.RowsAffected == 0 {
		return errs.ErrDuelNotFound
	}
	return nil
}

// CompleteDuel solo actualiza si el duelo sigue activo
func (s *Store) CompleteDuel(ctx context.Context, duelID, winnerID string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Duel{}).
			Where("id = ? AND active = ?", duelID, true).
			Updates(map[string]interface{}{
				"active":       false,
				"completed_at": at,
				"winner_id":    winnerID,
			})
		if res.Error != nil {
			return errs.Upstream(res.Error, "error completando duelo")
		}
		if res.RowsAffected == 0 {
			if _, err := s.getDuel(tx, duelID); err != nil {
				return err
			}
			return errs.ErrDuelCompleted
		}

		err := tx.Model(&models.Participant{}).
			Where("duel_id = ?", duelID).
			Update("has_turn", false).Error
		return errs.Upstream(err, "error limpiando turnos")
	})
}

func (s *Store) getDuel(tx *gorm.DB, duelID string) (*models.Duel, error) {
	var duel models.Duel
	if err := tx.Where("id = ?", duelID).First(&duel).Error; err != nil {
		return nil, translate(err, errs.ErrDuelNotFound, "error obteniendo duelo")
	}
	return &duel, nil
}

// ListStaleLobbies lista duelos activos con un solo participante creados antes de createdBefore
func (s *Store) ListStaleLobbies(ctx context.Context, createdBefore time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Duel{}).
		Where("active = ? AND created_at < ?", true, createdBefore).
		Where("(SELECT COUNT(*) FROM participants p WHERE p.duel_id = duels.id) < ?", models.Capacity).
		Order("created_at").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errs.Upstream(err, "error listando salas")
	}
	return ids, nil
}

func (s *Store) ExpireLobby(ctx context.Context, duelID string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var duel models.Duel
		if err := forUpdate(tx).Where("id = ?", duelID).First(&duel).Error; err != nil {
			return translate(err, errs.ErrDuelNotFound, "error obteniendo duelo")
		}
		var count int64
		if err := tx.Model(&models.Participant{}).Where("duel_id = ?", duelID).Count(&count).Error; err != nil {
			return errs.Upstream(err, "error contando participantes")
		}
		if !duel.Active || count >= models.Capacity {
			return errs.ErrNotLobby
		}

		if err := tx.Model(&duel).Updates(map[string]interface{}{
			"active":       false,
			"completed_at": at,
		}).Error; err != nil {
			return errs.Upstream(err, "error cerrando sala")
		}
		err := tx.Model(&models.Participant{}).
			Where("duel_id = ?", duelID).
			Update("has_turn", false).Error
		return errs.Upstream(err, "error limpiando turnos")
	})
}

// AddParticipant bloquea la fila del duelo para que dos uniones simultáneas
// no superen la capacidad.
func (s *Store) AddParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var duel models.Duel
		if err := forUpdate(tx).Where("id = ?", p.DuelID).First(&duel).Error; err != nil {
			return translate(err, errs.ErrDuelNotFound, "error obteniendo duelo")
		}

		var existing []models.Participant
		if err := tx.Where("duel_id = ?", p.DuelID).Find(&existing).Error; err != nil {
			return errs.Upstream(err, "error listando participantes")
		}
		for _, e := range existing {
			if e.UserID == p.UserID {
				return errs.ErrAlreadyJoined
			}
		}
		if len(existing) >= models.Capacity {
			return errs.ErrDuelFull
		}

		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrAlreadyJoined
			}
			return errs.Upstream(err, "error guardando participante")
		}
		return nil
	})
}

func (s *Store) ListParticipants(ctx context.Context, duelID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.WithContext(ctx).
		Where("duel_id = ?", duelID).
		Order("joined_at, user_id").
		Find(&participants).Error
	if err != nil {
		return nil, errs.Upstream(err, "error listando participantes")
	}
	return participants, nil
}

func (s *Store) MarkLeft(ctx context.Context, duelID, userID string) error {
	res := s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("duel_id = ? AND user_id = ?", duelID, userID).
		Update("left", true)
	if res.Error != nil {
		return errs.Upstream(res.Error, "error marcando abandono")
	}
	if res.RowsAffected == 0 {
		return errs.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) SetTurn(ctx context.Context, duelID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userID != "" {
			var count int64
			err := tx.Model(&models.Participant{}).
				Where("duel_id = ? AND user_id = ?", duelID, userID).
				Count(&count).Error
			if err != nil {
				return errs.Upstream(err, "error buscando participante")
			}
			if count == 0 {
				return errs.ErrParticipantNotFound
			}
		}

		err := tx.Model(&models.Participant{}).
			Where("duel_id = ?", duelID).
			Update("has_turn", gorm.Expr("user_id = ?", userID)).Error
		return errs.Upstream(err, "error asignando turno")
	})
}

// AppendAnswer bloquea al participante, valida secuencia y turno, e inserta.
// El índice único (duel_id, user_id, sequence) respalda la validación.
func (s *Store) AppendAnswer(ctx context.Context, answer *models.Answer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		err := forUpdate(tx).
			Where("duel_id = ? AND user_id = ?", answer.DuelID, answer.UserID).
			First(&p).Error
		if err != nil {
			return translate(err, errs.ErrParticipantNotFound, "error obteniendo participante")
		}

		if answer.Sequence <= p.AnswerCount {
			return errs.ErrDuplicateAnswer
		}
		if answer.Sequence != p.AnswerCount+1 {
			return errs.Conflict("secuencia %d fuera de orden, se esperaba %d", answer.Sequence, p.AnswerCount+1)
		}
		if !p.HasTurn {
			return errs.ErrNotYourTurn
		}

		if err := tx.Create(answer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrDuplicateAnswer
			}
			return errs.Upstream(err, "error guardando respuesta")
		}

		err = tx.Model(&models.Participant{}).
			Where("duel_id = ? AND user_id = ?", answer.DuelID, answer.UserID).
			Updates(map[string]interface{}{
				"answer_count": answer.Sequence,
				"has_turn":     false,
			}).Error
		return errs.Upstream(err, "error actualizando participante")
	})
}

func (s *Store) GetAnswer(ctx context.Context, duelID, userID string, sequence int) (*models.Answer, error) {
	var answer models.Answer
	err := s.db.WithContext(ctx).
		Where("duel_id = ? AND user_id = ? AND sequence = ?", duelID, userID, sequence).
		First(&answer).Error
	if err != nil {
		return nil, translate(err, errs.ErrAnswerNotFound, "error obteniendo respuesta")
	}
	return &answer, nil
}

func (s *Store) ListAnswers(ctx context.Context, duelID string) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.WithContext(ctx).Where("duel_id = ?", duelID).Order("id").Find(&answers).Error
	if err != nil {
		return nil, errs.Upstream(err, "error listando respuestas")
	}
	return answers, nil
}

// RecordRound avanza resolved_rounds con un UPDATE condicional; si otra
// petición ya consumió la ronda no se modifica ninguna fila.
func (s *Store) RecordRound(ctx context.Context, duelID string, round int, winnerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Duel{}).
			Where("id = ? AND resolved_rounds = ?", duelID, round-1).
			Update("resolved_rounds", round)
		if res.Error != nil {
			return errs.Upstream(res.Error, "error registrando ronda")
		}
		if res.RowsAffected == 0 {
			duel, err := s.getDuel(tx, duelID)
			if err != nil {
				return err
			}
			if duel.ResolvedRounds >= round {
				return errs.ErrRoundResolved
			}
			return errs.Conflict("ronda %d fuera de orden, resueltas %d", round, duel.ResolvedRounds)
		}

		if winnerID == "" {
			return nil
		}
		res = tx.Model(&models.Participant{}).
			Where("duel_id = ? AND user_id = ?", duelID, winnerID).
			Update("score", gorm.Expr("score + ?", 1))
		if res.Error != nil {
			return errs.Upstream(res.Error, "error sumando punto")
		}
		if res.RowsAffected == 0 {
			return errs.ErrParticipantNotFound
		}
		return nil
	})
}

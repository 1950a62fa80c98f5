package postgres

import (
	"context"
	"errors"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReplaceQuestions sustituye el banco completo de preguntas
func (s *Store) ReplaceQuestions(ctx context.Context, questions []models.Question) error {
	log.Infof("📚 Cargando %d preguntas a PostgreSQL...", len(questions))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.CreateInBatches(questions, 100).Error
	})
	if err != nil {
		return errs.Upstream(err, "error guardando preguntas")
	}
	return nil
}

func (s *Store) GetQuestion(ctx context.Context, id int) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, translate(err, errs.NotFound("pregunta %d no encontrada", id), "error obteniendo pregunta")
	}
	return &q, nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	if err := s.db.WithContext(ctx).Order("id").Find(&questions).Error; err != nil {
		return nil, errs.Upstream(err, "error obteniendo preguntas")
	}
	return questions, nil
}

// RandomQuestion elige al azar excluyendo excludeID; si no queda otra
// pregunta, cualquiera sirve.
func (s *Store) RandomQuestion(ctx context.Context, excludeID int) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).Where("id <> ?", excludeID).Order("RANDOM()").Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Order("RANDOM()").Take(&q).Error
	}
	if err != nil {
		return nil, translate(err, errs.ErrQuestionNotFound, "error obteniendo pregunta aleatoria")
	}
	return &q, nil
}

func (s *Store) CountQuestions(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Question{}).Count(&count).Error; err != nil {
		return 0, errs.Upstream(err, "error obteniendo conteo de preguntas")
	}
	return int(count), nil
}

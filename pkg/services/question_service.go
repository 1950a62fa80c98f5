package services

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// QuestionService maneja la lógica de negocio para las preguntas
type QuestionService struct {
	store QuestionStore
	cache *cache.Cache
}

// NewQuestionService crea una nueva instancia del servicio
func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{
		store: store,
		cache: cache.New(10*time.Minute, 20*time.Minute),
	}
}

// ParseQuestions decodifica y valida el JSON del banco de preguntas
func ParseQuestions(jsonData []byte) ([]models.Question, error) {
	var data models.QuestionsData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, errs.Validation("JSON de preguntas inválido: %v", err)
	}

	seen := make(map[int]bool, len(data.Questions))
	for _, q := range data.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if seen[q.ID] {
			return nil, errs.Validation("pregunta %d duplicada", q.ID)
		}
		seen[q.ID] = true
	}
	return data.Questions, nil
}

func validateQuestion(q models.Question) error {
	if q.Question == "" {
		return errs.Validation("pregunta %d sin enunciado", q.ID)
	}
	if len(q.Options) != len(models.OptionKeys) {
		return errs.Validation("pregunta %d debe tener %d opciones", q.ID, len(models.OptionKeys))
	}
	for _, key := range models.OptionKeys {
		if _, ok := q.Options[key]; !ok {
			return errs.Validation("pregunta %d sin opción %s", q.ID, key)
		}
	}
	if _, ok := q.Options[q.Correct]; !ok {
		return errs.Validation("pregunta %d con respuesta correcta %q inválida", q.ID, q.Correct)
	}
	return nil
}

// LoadQuestionsFromFile carga las preguntas desde el archivo JSON al store
func (s *QuestionService) LoadQuestionsFromFile(ctx context.Context, filePath string) (int, error) {
	log.WithField("file", filePath).Info("📂 Cargando preguntas")

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return 0, errs.Validation("error leyendo archivo JSON: %v", err)
	}

	questions, err := ParseQuestions(jsonData)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, errs.Validation("el archivo %s no contiene preguntas", filePath)
	}

	if err := s.store.ReplaceQuestions(ctx, questions); err != nil {
		return 0, errors.WithMessage(err, "error cargando preguntas")
	}
	s.cache.Flush()

	log.Infof("✅ %d preguntas cargadas exitosamente desde archivo", len(questions))
	return len(questions), nil
}

// GetAllQuestions obtiene todas las preguntas
func (s *QuestionService) GetAllQuestions(ctx context.Context) ([]models.Question, error) {
	return s.store.ListQuestions(ctx)
}

// GetQuestion obtiene una pregunta específica por ID. Las preguntas son
// inmutables hasta la siguiente recarga, así que se cachean.
func (s *QuestionService) GetQuestion(ctx context.Context, id int) (*models.Question, error) {
	key := strconv.Itoa(id)
	if cached, ok := s.cache.Get(key); ok {
		q := cached.(models.Question)
		return &q, nil
	}

	question, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *question)
	return question, nil
}

// GetRandomQuestion obtiene una pregunta aleatoria
func (s *QuestionService) GetRandomQuestion(ctx context.Context) (*models.Question, error) {
	return s.PickQuestion(ctx, 0)
}

// PickQuestion elige una pregunta al azar distinta de excludeID. Si el banco
// solo tiene esa pregunta, la devuelve igualmente.
func (s *QuestionService) PickQuestion(ctx context.Context, excludeID int) (*models.Question, error) {
	question, err := s.store.RandomQuestion(ctx, excludeID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(strconv.Itoa(question.ID), *question)
	return question, nil
}

// GetQuestionCount obtiene el número total de preguntas
func (s *QuestionService) GetQuestionCount(ctx context.Context) (int, error) {
	return s.store.CountQuestions(ctx)
}

// ReloadQuestions recarga las preguntas desde el archivo JSON
func (s *QuestionService) ReloadQuestions(ctx context.Context, filePath string) (int, error) {
	log.Info("🔄 Recargando preguntas...")

	count, err := s.LoadQuestionsFromFile(ctx, filePath)
	if err != nil {
		return 0, errors.WithMessage(err, "error recargando preguntas")
	}
	return count, nil
}

// EnsureLoaded carga el archivo solo si el banco está vacío
func (s *QuestionService) EnsureLoaded(ctx context.Context, filePath string) (int, error) {
	count, err := s.store.CountQuestions(ctx)
	if err == nil && count > 0 {
		log.Infof("✅ Ya hay %d preguntas cargadas", count)
		return count, nil
	}
	return s.LoadQuestionsFromFile(ctx, filePath)
}

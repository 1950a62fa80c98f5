package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/backsoul/trivia-duel/pkg/services"
	"github.com/valyala/fasthttp"
)

// Pinger comprueba que el almacenamiento responde
type Pinger interface {
	Ping(ctx context.Context) error
}

// QuestionHandler maneja las peticiones HTTP para preguntas
type QuestionHandler struct {
	questionService *services.QuestionService
	store           Pinger
	questionsFile   string
}

// NewQuestionHandler crea una nueva instancia del handler
func NewQuestionHandler(questionService *services.QuestionService, store Pinger, questionsFile string) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		store:           store,
		questionsFile:   questionsFile,
	}
}

// GetAllQuestions maneja GET /api/questions
func (h *QuestionHandler) GetAllQuestions(ctx *fasthttp.RequestCtx) {
	questions, err := h.questionService.GetAllQuestions(ctx)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	responseData := models.QuestionResponse{
		Questions: questions,
		Count:     len(questions),
	}

	respondWithSuccess(ctx, responseData, "Preguntas obtenidas exitosamente")
}

// GetQuestion maneja GET /api/questions/{id}
func (h *QuestionHandler) GetQuestion(ctx *fasthttp.RequestCtx) {
	idStr, _ := ctx.UserValue("id").(string)
	id, err := strconv.Atoi(idStr)
	if err != nil {
		respondWithError(ctx, fasthttp.StatusBadRequest, "ID de pregunta inválido")
		return
	}

	question, err := h.questionService.GetQuestion(ctx, id)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.QuestionResponse{Question: question}, "Pregunta obtenida exitosamente")
}

// GetRandomQuestion maneja GET /api/questions/random
func (h *QuestionHandler) GetRandomQuestion(ctx *fasthttp.RequestCtx) {
	question, err := h.questionService.GetRandomQuestion(ctx)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.QuestionResponse{Question: question}, "Pregunta aleatoria obtenida exitosamente")
}

// ReloadQuestions maneja POST /api/questions/reload
func (h *QuestionHandler) ReloadQuestions(ctx *fasthttp.RequestCtx) {
	count, err := h.questionService.ReloadQuestions(ctx, h.questionsFile)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.QuestionResponse{Count: count}, fmt.Sprintf("%d preguntas recargadas exitosamente", count))
}

// HealthCheck maneja GET /api/health
func (h *QuestionHandler) HealthCheck(ctx *fasthttp.RequestCtx) {
	if err := h.store.Ping(ctx); err != nil {
		respondWithError(ctx, fasthttp.StatusServiceUnavailable, fmt.Sprintf("Servicio no disponible: %v", err))
		return
	}

	count, _ := h.questionService.GetQuestionCount(ctx)
	respondWithSuccess(ctx, map[string]interface{}{
		"status":    "healthy",
		"store":     "connected",
		"questions": count,
	}, "Servicio funcionando correctamente")
}

package handlers

import (
	"context"
	"strings"

	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/backsoul/trivia-duel/pkg/services"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// DuelPublisher empuja el estado del duelo a los clientes conectados
type DuelPublisher interface {
	PublishDuel(ctx context.Context, snapshot *models.DuelSnapshot) error
}

// DuelHandler maneja las peticiones HTTP de duelos
type DuelHandler struct {
	registry  *services.RegistryService
	matches   *services.MatchService
	publisher DuelPublisher
}

// NewDuelHandler crea el handler; publisher puede ser nil
func NewDuelHandler(registry *services.RegistryService, matches *services.MatchService, publisher DuelPublisher) *DuelHandler {
	return &DuelHandler{
		registry:  registry,
		matches:   matches,
		publisher: publisher,
	}
}

// CreateDuel maneja POST /api/duels
func (h *DuelHandler) CreateDuel(ctx *fasthttp.RequestCtx) {
	var request models.DuelCreateRequest
	if err := decodeBody(ctx, &request); err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	snapshot, err := h.registry.CreateDuel(ctx, request.UserID, request.Username)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.DuelResponse{Duel: snapshot}, "Duelo creado exitosamente")
}

// JoinDuel maneja POST /api/duels/join
func (h *DuelHandler) JoinDuel(ctx *fasthttp.RequestCtx) {
	var request models.DuelJoinRequest
	if err := decodeBody(ctx, &request); err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	snapshot, err := h.registry.JoinDuel(ctx, request.UserID, request.Username, request.RoomCode)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	h.publish(ctx, snapshot)
	respondWithSuccess(ctx, models.DuelResponse{Duel: snapshot}, "Te uniste al duelo")
}

// GetDuel maneja GET /api/duels/{id}
func (h *DuelHandler) GetDuel(ctx *fasthttp.RequestCtx) {
	snapshot, err := h.registry.GetDuel(ctx, duelID(ctx))
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.DuelResponse{Duel: snapshot}, "Duelo obtenido exitosamente")
}

// GetRounds maneja GET /api/duels/{id}/rounds
func (h *DuelHandler) GetRounds(ctx *fasthttp.RequestCtx) {
	rounds, err := h.registry.Rounds(ctx, duelID(ctx))
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	respondWithSuccess(ctx, models.DuelResponse{Rounds: rounds}, "Rondas obtenidas exitosamente")
}

// SubmitAnswer maneja POST /api/duels/{id}/answer
func (h *DuelHandler) SubmitAnswer(ctx *fasthttp.RequestCtx) {
	var request models.AnswerRequest
	if err := decodeBody(ctx, &request); err != nil {
		respondWithServiceError(ctx, err)
		return
	}
	request.SelectedOption = strings.ToUpper(strings.TrimSpace(request.SelectedOption))

	snapshot, err := h.matches.SubmitAnswer(ctx, duelID(ctx), request.UserID, request.AnswerSubmission)
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	h.publish(ctx, snapshot)
	respondWithSuccess(ctx, models.DuelResponse{Duel: snapshot}, "Respuesta registrada")
}

// LeaveDuel maneja POST /api/duels/{id}/leave
func (h *DuelHandler) LeaveDuel(ctx *fasthttp.RequestCtx) {
	var request models.DuelLeaveRequest
	if err := decodeBody(ctx, &request); err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	snapshot, err := h.registry.LeaveDuel(ctx, request.UserID, duelID(ctx))
	if err != nil {
		respondWithServiceError(ctx, err)
		return
	}

	h.publish(ctx, snapshot)
	respondWithSuccess(ctx, models.DuelResponse{Duel: snapshot}, "Abandonaste el duelo")
}

func (h *DuelHandler) publish(ctx context.Context, snapshot *models.DuelSnapshot) {
	if h.publisher == nil || snapshot == nil {
		return
	}
	if err := h.publisher.PublishDuel(ctx, snapshot); err != nil {
		log.WithError(err).WithField("duel", snapshot.Duel.ID).Warn("⚠️ No se pudo publicar el estado del duelo")
	}
}

func duelID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}

package handlers

import (
	"encoding/json"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// respondWithJSON envía una respuesta JSON
func respondWithJSON(ctx *fasthttp.RequestCtx, statusCode int, response interface{}) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	ctx.SetStatusCode(statusCode)

	jsonData, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success": false, "error": "Error al serializar respuesta"}`)
		return
	}

	ctx.SetBody(jsonData)
}

// respondWithError envía una respuesta de error
func respondWithError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	respondWithJSON(ctx, statusCode, models.APIResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithSuccess envía una respuesta exitosa
func respondWithSuccess(ctx *fasthttp.RequestCtx, data interface{}, message string) {
	respondWithJSON(ctx, fasthttp.StatusOK, models.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondWithServiceError traduce la clasificación de err a un status HTTP
func respondWithServiceError(ctx *fasthttp.RequestCtx, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if kind == errs.KindUpstream {
		log.WithError(err).WithField("path", string(ctx.Path())).Error("❌ Error de dependencia externa")
	}

	respondWithJSON(ctx, status, models.APIResponse{
		Success: false,
		Error:   err.Error(),
		Kind:    string(kind),
	})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return fasthttp.StatusNotFound
	case errs.KindConflict:
		return fasthttp.StatusConflict
	case errs.KindValidation:
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusBadGateway
	}
}

// decodeBody lee el cuerpo JSON de la petición
func decodeBody(ctx *fasthttp.RequestCtx, dst interface{}) error {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		return errs.Validation("JSON inválido: %v", err)
	}
	return nil
}

package handlers

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Router enruta las peticiones a los handlers. Cualquier handler puede ser
// nil y su ruta responde 404.
type Router struct {
	Questions *QuestionHandler
	Duels     *DuelHandler
	WebSocket *WebSocketHandler
	Metrics   fasthttp.RequestHandler
}

// Handler es el fasthttp.RequestHandler del servidor
func (rt *Router) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	path := string(ctx.Path())
	method := string(ctx.Method())

	// Headers de respuesta y CORS para desarrollo
	ctx.Response.Header.Set("Server", "TriviaDuel-FastHTTP/1.0")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	// Manejar preflight requests
	if method == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusOK)
		return
	}

	rt.route(ctx, path, method)

	log.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   ctx.Response.StatusCode(),
		"duration": time.Since(start),
	}).Debug("📡 Petición atendida")
}

func (rt *Router) route(ctx *fasthttp.RequestCtx, path, method string) {
	switch {
	case path == "/metrics" && rt.Metrics != nil:
		rt.Metrics(ctx)

	case path == "/ws" && rt.WebSocket != nil:
		rt.WebSocket.HandleWebSocket(ctx)

	case strings.HasPrefix(path, "/api/health") && rt.Questions != nil:
		rt.Questions.HealthCheck(ctx)

	case strings.HasPrefix(path, "/api/questions") && rt.Questions != nil:
		rt.routeQuestions(ctx, path, method)

	case strings.HasPrefix(path, "/api/duels") && rt.Duels != nil:
		rt.routeDuels(ctx, path, method)

	default:
		serve404(ctx)
	}
}

func (rt *Router) routeQuestions(ctx *fasthttp.RequestCtx, path, method string) {
	switch {
	case path == "/api/questions" && method == fasthttp.MethodGet:
		rt.Questions.GetAllQuestions(ctx)
	case path == "/api/questions/random" && method == fasthttp.MethodGet:
		rt.Questions.GetRandomQuestion(ctx)
	case path == "/api/questions/reload" && method == fasthttp.MethodPost:
		rt.Questions.ReloadQuestions(ctx)
	case method == fasthttp.MethodGet:
		// /api/questions/{id}
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] != "" {
			ctx.SetUserValue("id", parts[3])
			rt.Questions.GetQuestion(ctx)
			return
		}
		serve404(ctx)
	default:
		serve404(ctx)
	}
}

func (rt *Router) routeDuels(ctx *fasthttp.RequestCtx, path, method string) {
	switch {
	case path == "/api/duels" && method == fasthttp.MethodPost:
		rt.Duels.CreateDuel(ctx)
		return
	case path == "/api/duels/join" && method == fasthttp.MethodPost:
		rt.Duels.JoinDuel(ctx)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[3] == "" {
		serve404(ctx)
		return
	}
	ctx.SetUserValue("id", parts[3])

	switch {
	// /api/duels/{id}
	case len(parts) == 4 && method == fasthttp.MethodGet:
		rt.Duels.GetDuel(ctx)
	// /api/duels/{id}/rounds
	case len(parts) == 5 && parts[4] == "rounds" && method == fasthttp.MethodGet:
		rt.Duels.GetRounds(ctx)
	// /api/duels/{id}/answer
	case len(parts) == 5 && parts[4] == "answer" && method == fasthttp.MethodPost:
		rt.Duels.SubmitAnswer(ctx)
	// /api/duels/{id}/leave
	case len(parts) == 5 && parts[4] == "leave" && method == fasthttp.MethodPost:
		rt.Duels.LeaveDuel(ctx)
	default:
		serve404(ctx)
	}
}

func serve404(ctx *fasthttp.RequestCtx) {
	respondWithError(ctx, fasthttp.StatusNotFound, "Ruta no encontrada: "+string(ctx.Method())+" "+string(ctx.Path()))
}

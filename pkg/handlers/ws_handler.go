package handlers

import (
	"encoding/json"
	"time"

	"github.com/backsoul/trivia-duel/pkg/services"
	websocketHub "github.com/backsoul/trivia-duel/pkg/websocket"
	"github.com/fasthttp/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type WebSocketHandler struct {
	registry *services.RegistryService
	hub      *websocketHub.Hub
}

func NewWebSocketHandler(registry *services.RegistryService, hub *websocketHub.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		hub:      hub,
	}
}

var upgrader = websocket.FastHTTPUpgrader{
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true // Permitir conexiones desde cualquier origen en desarrollo
	},
}

// HandleWebSocket maneja GET /ws?userId=...&duelId=...
func (wh *WebSocketHandler) HandleWebSocket(ctx *fasthttp.RequestCtx) {
	userID := string(ctx.QueryArgs().Peek("userId"))
	if userID == "" {
		respondWithError(ctx, fasthttp.StatusBadRequest, "userId es requerido")
		return
	}

	// El estado inicial se lee antes del upgrade, mientras ctx sigue siendo válido
	var initial []byte
	if id := string(ctx.QueryArgs().Peek("duelId")); id != "" {
		if snapshot, err := wh.registry.GetDuel(ctx, id); err == nil {
			initial, _ = json.Marshal(websocketHub.Message{Type: "duelState", Data: snapshot})
		}
	}

	err := upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
		defer ws.Close()

		if initial != nil {
			ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			ws.WriteMessage(websocket.TextMessage, initial)
		}

		wh.hub.Register(userID, ws)
		defer wh.hub.Unregister(userID, ws)

		// Escuchar mensajes del cliente hasta que cierre
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				log.WithField("user", userID).Debugf("Conexión WebSocket cerrada: %v", err)
				break
			}
		}
	})

	if err != nil {
		log.WithError(err).Warn("Error upgrading to WebSocket")
	}
}

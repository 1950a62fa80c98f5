package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/fasthttp/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub mantiene las conexiones abiertas de cada usuario y les empuja los
// eventos de sus duelos. Implementa services.Notifier.
type Hub struct {
	clients    map[string]map[*websocket.Conn]bool
	deliver    chan delivery
	register   chan subscription
	unregister chan subscription
	done       chan struct{}
	mutex      sync.RWMutex
}

type subscription struct {
	userID string
	conn   *websocket.Conn
}

type delivery struct {
	userIDs []string
	payload []byte
}

// Message es el sobre de todo lo que viaja por el websocket
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TurnMessage avisa al destinatario de que le toca responder
type TurnMessage struct {
	DuelID         string `json:"duelId"`
	RoomCode       string `json:"roomCode"`
	ActingUsername string `json:"actingUsername"`
	Timestamp      string `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		deliver:    make(chan delivery, 64),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		done:       make(chan struct{}),
	}
}

// Run atiende registros y envíos hasta que ctx se cancela
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for _, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
			}
			h.clients = make(map[string]map[*websocket.Conn]bool)
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			h.mutex.Lock()
			if h.clients[sub.userID] == nil {
				h.clients[sub.userID] = make(map[*websocket.Conn]bool)
			}
			h.clients[sub.userID][sub.conn] = true
			h.mutex.Unlock()
			log.WithField("user", sub.userID).Debug("Cliente WebSocket conectado")

		case sub := <-h.unregister:
			h.mutex.Lock()
			h.drop(sub.userID, sub.conn)
			h.mutex.Unlock()
			log.WithField("user", sub.userID).Debug("Cliente WebSocket desconectado")

		case d := <-h.deliver:
			h.mutex.Lock()
			for _, userID := range d.userIDs {
				for conn := range h.clients[userID] {
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, d.payload); err != nil {
						log.WithError(err).WithField("user", userID).Warn("Error enviando mensaje WebSocket")
						h.drop(userID, conn)
					}
				}
			}
			h.mutex.Unlock()
		}
	}
}

// drop requiere h.mutex tomado
func (h *Hub) drop(userID string, conn *websocket.Conn) {
	conns, ok := h.clients[userID]
	if !ok || !conns[conn] {
		return
	}
	delete(conns, conn)
	conn.Close()
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

// Register no bloquea si el hub ya se detuvo; la conexión se cierra
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	select {
	case h.register <- subscription{userID: userID, conn: conn}:
	case <-h.done:
		conn.Close()
	}
}

func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	select {
	case h.unregister <- subscription{userID: userID, conn: conn}:
	case <-h.done:
	}
}

// Connected devuelve cuántas conexiones tiene abiertas userID
func (h *Hub) Connected(userID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[userID])
}

// Publish envía un mensaje a todas las conexiones de los usuarios indicados
func (h *Hub) Publish(ctx context.Context, msgType string, data interface{}, userIDs ...string) error {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return errs.Upstream(err, "error serializando mensaje")
	}

	select {
	case h.deliver <- delivery{userIDs: userIDs, payload: payload}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return errs.Upstream(ctx.Err(), "hub WebSocket ocupado")
	}
}

// PublishDuel empuja el estado del duelo a sus participantes
func (h *Hub) PublishDuel(ctx context.Context, snapshot *models.DuelSnapshot) error {
	userIDs := make([]string, 0, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		userIDs = append(userIDs, p.UserID)
	}
	return h.Publish(ctx, "duelState", snapshot, userIDs...)
}

func (h *Hub) NotifyTurn(ctx context.Context, recipientID, duelID, roomCode, actingUsername string) error {
	return h.Publish(ctx, "turn", TurnMessage{
		DuelID:         duelID,
		RoomCode:       roomCode,
		ActingUsername: actingUsername,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}, recipientID)
}

func (h *Hub) NotifyMatchResult(ctx context.Context, result models.MatchResult) error {
	return h.Publish(ctx, "matchResult", result, result.WinnerID, result.LoserID)
}

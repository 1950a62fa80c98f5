// Package push envía notificaciones móviles a través de la API REST de
// OneSignal. Los destinatarios se identifican por su external id, que es el
// mismo userId que usa el duelo.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/hashicorp/go-cleanhttp"
	log "github.com/sirupsen/logrus"
)

const DefaultURL = "https://api.onesignal.com/notifications"

// Client implementa services.Notifier
type Client struct {
	URL    string
	AppID  string
	APIKey string
	HTTP   *http.Client
}

// NewClient crea un cliente con transporte aislado de go-cleanhttp
func NewClient(url, appID, apiKey string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return &Client{
		URL:    url,
		AppID:  appID,
		APIKey: apiKey,
		HTTP:   httpClient,
	}
}

type notification struct {
	AppID          string              `json:"app_id"`
	IncludeAliases map[string][]string `json:"include_aliases"`
	TargetChannel  string              `json:"target_channel"`
	Headings       map[string]string   `json:"headings"`
	Contents       map[string]string   `json:"contents"`
	Data           map[string]string   `json:"data,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// NotifyTurn avisa a recipientID de que le toca responder
func (c *Client) NotifyTurn(ctx context.Context, recipientID, duelID, roomCode, actingUsername string) error {
	return c.send(ctx, recipientID, "¡Es tu turno!",
		fmt.Sprintf("%s ya jugó en la sala %s. Responde tu pregunta.", actingUsername, roomCode),
		map[string]string{"type": "turn", "duelId": duelID, "roomCode": roomCode})
}

// NotifyMatchResult avisa al ganador y al perdedor
func (c *Client) NotifyMatchResult(ctx context.Context, result models.MatchResult) error {
	data := map[string]string{"type": "matchResult", "duelId": result.DuelID, "winnerId": result.WinnerID}

	winErr := c.send(ctx, result.WinnerID, "🏆 ¡Ganaste!",
		fmt.Sprintf("Venciste a %s %d-%d", result.LoserName, result.WinnerScore, result.LoserScore), data)

	var loseErr error
	if result.LoserID != "" {
		loseErr = c.send(ctx, result.LoserID, "Duelo terminado",
			fmt.Sprintf("%s ganó el duelo %d-%d", result.WinnerName, result.WinnerScore, result.LoserScore), data)
	}
	return errors.Join(winErr, loseErr)
}

func (c *Client) send(ctx context.Context, externalID, heading, content string, data map[string]string) error {
	payload, err := json.Marshal(notification{
		AppID:          c.AppID,
		IncludeAliases: map[string][]string{"external_id": {externalID}},
		TargetChannel:  "push",
		Headings:       map[string]string{"en": heading, "es": heading},
		Contents:       map[string]string{"en": content, "es": content},
		Data:           data,
	})
	if err != nil {
		return errs.Upstream(err, "error serializando notificación")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return errs.Upstream(err, "error creando petición de notificación")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.Upstream(err, "error enviando notificación")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return errs.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, body), "OneSignal rechazó la notificación")
	}

	var out response
	if err := json.Unmarshal(body, &out); err == nil && len(out.Errors) > 0 && string(out.Errors) != "null" {
		return errs.Upstream(fmt.Errorf("%s", out.Errors), "OneSignal devolvió errores")
	}

	log.WithFields(log.Fields{"recipient": externalID, "notification": out.ID}).Debug("📲 Push enviado")
	return nil
}

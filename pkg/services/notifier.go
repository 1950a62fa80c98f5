package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/backsoul/trivia-duel/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Notifier avisa a los jugadores de cambios de turno y del resultado final.
// Las implementaciones pueden fallar; quien llama nunca depende del envío.
type Notifier interface {
	NotifyTurn(ctx context.Context, recipientID, duelID, roomCode, actingUsername string) error
	NotifyMatchResult(ctx context.Context, result models.MatchResult) error
}

// MultiNotifier reparte cada notificación a todos sus destinos
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyTurn(ctx context.Context, recipientID, duelID, roomCode, actingUsername string) error {
	var all []error
	for _, n := range m {
		if err := n.NotifyTurn(ctx, recipientID, duelID, roomCode, actingUsername); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

func (m MultiNotifier) NotifyMatchResult(ctx context.Context, result models.MatchResult) error {
	var all []error
	for _, n := range m {
		if err := n.NotifyMatchResult(ctx, result); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// Dispatcher envía notificaciones en segundo plano, después de que la
// transición del duelo ya se confirmó.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher crea un dispatcher; notifier puede ser nil
func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout}
}

// Turn avisa a recipientID de que le toca jugar
func (d *Dispatcher) Turn(recipientID, duelID, roomCode, actingUsername string) {
	d.dispatch("turn", log.Fields{"duel": duelID, "recipient": recipientID}, func(ctx context.Context) error {
		return d.notifier.NotifyTurn(ctx, recipientID, duelID, roomCode, actingUsername)
	})
}

// MatchResult avisa del ganador del duelo
func (d *Dispatcher) MatchResult(result models.MatchResult) {
	d.dispatch("match_result", log.Fields{"duel": result.DuelID, "winner": result.WinnerID}, func(ctx context.Context) error {
		return d.notifier.NotifyMatchResult(ctx, result)
	})
}

func (d *Dispatcher) dispatch(kind string, fields log.Fields, send func(ctx context.Context) error) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			metrics.NotificationFailures.WithLabelValues(kind).Inc()
			log.WithFields(fields).WithError(err).Warnf("⚠️ Error enviando notificación %s", kind)
			return
		}
		log.WithFields(fields).Debugf("📨 Notificación %s enviada", kind)
	}()
}

// Wait espera a que terminen las notificaciones en curso
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

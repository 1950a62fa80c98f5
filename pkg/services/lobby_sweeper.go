package services

import (
	"context"
	"errors"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

// LobbySweeper cierra periódicamente las salas que llevan demasiado tiempo
// esperando oponente.
type LobbySweeper struct {
	store    DuelStore
	locks    *DuelLocks
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	scheduler gocron.Scheduler
}

func NewLobbySweeper(store DuelStore, locks *DuelLocks, ttl, interval time.Duration) *LobbySweeper {
	return &LobbySweeper{
		store:    store,
		locks:    locks,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Start programa Sweep cada interval
func (s *LobbySweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			if _, err := s.Sweep(ctx); err != nil {
				log.WithError(err).Error("[Sweeper] error cerrando salas")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	sched.Start()
	s.scheduler = sched
	log.WithFields(log.Fields{"ttl": s.ttl, "interval": s.interval}).Info("🧹 Limpieza de salas programada")
	return nil
}

// Stop detiene el scheduler
func (s *LobbySweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// Sweep expira las salas creadas antes de now-ttl y devuelve cuántas cerró
func (s *LobbySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ids, err := s.store.ListStaleLobbies(ctx, now.Add(-s.ttl))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, duelID := range ids {
		unlock := s.locks.Lock(duelID)
		err := s.store.ExpireLobby(ctx, duelID, now)
		unlock()

		switch {
		case errors.Is(err, errs.ErrNotLobby):
			continue
		case err != nil:
			log.WithError(err).WithField("duel", duelID).Warn("[Sweeper] no se pudo cerrar la sala")
			continue
		}
		expired++
		metrics.LobbiesExpired.Inc()
		log.WithField("duel", duelID).Info("⌛ Sala cerrada por falta de oponente")
	}
	return expired, nil
}

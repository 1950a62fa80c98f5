// Package metrics expone los contadores Prometheus del servicio de duelos.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	DuelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "duels_created_total",
		Help:      "Duelos creados",
	})
	DuelsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "duels_joined_total",
		Help:      "Segundos jugadores que entraron a un duelo",
	})
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "answers_submitted_total",
		Help:      "Respuestas recibidas por resultado",
	}, []string{"result"})
	RoundsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "rounds_resolved_total",
		Help:      "Rondas resueltas por desenlace",
	}, []string{"outcome"})
	MatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "matches_completed_total",
		Help:      "Duelos que alcanzaron el umbral de victoria",
	})
	LobbiesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "lobbies_expired_total",
		Help:      "Salas cerradas por no recibir oponente",
	})
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivia_duel",
		Name:      "notification_failures_total",
		Help:      "Notificaciones que fallaron",
	}, []string{"kind"})
)

// Handler sirve /metrics sobre fasthttp
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

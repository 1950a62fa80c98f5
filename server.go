package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/backsoul/trivia-duel/pkg/handlers"
	"github.com/backsoul/trivia-duel/pkg/metrics"
	"github.com/backsoul/trivia-duel/pkg/push"
	"github.com/backsoul/trivia-duel/pkg/services"
	"github.com/backsoul/trivia-duel/pkg/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("🚀 Iniciando servidor Trivia Duel")
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Inicializar servicios
	log.Println("⚙️  Inicializando servicios...")
	questionService := services.NewQuestionService(st)
	loadInitialQuestions(ctx, questionService)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	notifiers := services.MultiNotifier{hub}
	if cfg.PushEnabled() {
		log.Println("📲 Notificaciones push habilitadas")
		notifiers = append(notifiers, push.NewClient(cfg.OneSignalURL, cfg.OneSignalAppID, cfg.OneSignalAPIKey, cfg.NotifyTimeout))
	}
	dispatcher := services.NewDispatcher(notifiers, cfg.NotifyTimeout)

	locks := services.NewDuelLocks()
	ledger := services.NewScoreLedger(st)
	turns := services.NewTurnScheduler(st, questionService)
	registry := services.NewRegistryService(st, questionService, locks, dispatcher, cfg.WinThreshold)
	matches := services.NewMatchService(st, questionService, ledger, turns, locks, dispatcher)

	sweeper := services.NewLobbySweeper(st, locks, cfg.LobbyTTL, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		return err
	}

	// Inicializar handlers
	router := &handlers.Router{
		Questions: handlers.NewQuestionHandler(questionService, st, cfg.QuestionsFile),
		Duels:     handlers.NewDuelHandler(registry, matches, hub),
		WebSocket: handlers.NewWebSocketHandler(registry, hub),
		Metrics:   metrics.Handler(),
	}

	server := &fasthttp.Server{
		Handler: router.Handler,
		Name:    "Trivia Duel Server",
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(cfg.HTTPAddr)
	}()

	log.Printf("🎮 Servidor Trivia Duel escuchando en %s", cfg.HTTPAddr)
	log.Println("🔧 API Health: /api/health")
	log.Println("⚔️  API Duelos: /api/duels")
	log.Println("📊 Métricas: /metrics")
	log.Println("🔄 Presiona Ctrl+C para detener el servidor")

	select {
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("Error al iniciar el servidor")
		}
		stopSweeper(sweeper)
		return err
	case <-ctx.Done():
	}

	log.Println("🛑 Deteniendo servidor...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ Error cerrando el servidor HTTP")
	}
	stopSweeper(sweeper)

	// Las notificaciones pendientes todavía necesitan el hub
	dispatcher.Wait()
	stopHub()

	log.Println("👋 Servidor detenido")
	return nil
}

func stopSweeper(sweeper *services.LobbySweeper) {
	if err := sweeper.Stop(); err != nil {
		log.WithError(err).Warn("⚠️ Error deteniendo el barrido de salas")
	}
}

func loadInitialQuestions(ctx context.Context, questionService *services.QuestionService) {
	log.Println("📚 Cargando preguntas iniciales...")

	count, err := questionService.EnsureLoaded(ctx, cfg.QuestionsFile)
	if err != nil {
		log.WithError(err).Warn("⚠️ Error cargando preguntas iniciales")
		log.Println("💡 El servidor continuará funcionando. Puedes cargar preguntas usando POST /api/questions/reload")
		return
	}
	log.Printf("✅ %d preguntas disponibles", count)
}

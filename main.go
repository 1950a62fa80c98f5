package main

import (
	"context"
	"fmt"
	"os"

	"github.com/backsoul/trivia-duel/pkg/config"
	"github.com/backsoul/trivia-duel/pkg/postgres"
	"github.com/backsoul/trivia-duel/pkg/redis"
	"github.com/backsoul/trivia-duel/pkg/services"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// store reúne lo que el servidor necesita del almacenamiento
type store interface {
	services.DuelStore
	services.QuestionStore
	Close() error
}

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "trivia-duel",
	Short: "Servidor de duelos de trivia 1 contra 1",
	Long: `Trivia Duel enfrenta a dos jugadores por turnos sobre un banco de
preguntas. Gana quien primero llega al umbral de rondas ganadas.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		cfg.ConfigureLogger()
		return nil
	},
	RunE: runServe,
}

var loadQuestionsCmd = &cobra.Command{
	Use:   "load-questions",
	Short: "Carga el banco de preguntas desde un archivo JSON",
	RunE:  runLoadQuestions,
}

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Inicia el servidor HTTP y WebSocket",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "dirección de escucha (por defecto HTTP_ADDR)")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	loadQuestionsCmd.Flags().StringP("file", "f", "", "archivo de preguntas (por defecto QUESTIONS_FILE)")

	rootCmd.AddCommand(serveCmd, loadQuestionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Info("🐘 Conectando a Postgres...")
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		log.Infof("🔌 Conectando a Redis en %s...", cfg.RedisAddr)
		rc, err := redis.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
}

func runLoadQuestions(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		file = cfg.QuestionsFile
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := services.NewQuestionService(st).LoadQuestionsFromFile(ctx, file)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d preguntas cargadas desde %s\n", count, file)
	return nil
}

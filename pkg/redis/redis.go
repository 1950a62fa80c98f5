package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	questionIDsKey = "trivia:question_ids"
	maxTxRetries   = 8
)

// RedisClient estructura para manejar conexiones con Redis. Implementa
// services.DuelStore y services.QuestionStore.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient crea una nueva instancia del cliente Redis y verifica la conexión
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verificar conexión
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errs.Upstream(err, "error conectando a Redis")
	}

	log.WithField("addr", addr).Info("✅ Conexión exitosa a Redis")
	return NewFromClient(rdb), nil
}

// NewFromClient envuelve un cliente ya configurado
func NewFromClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{client: rdb}
}

func questionKey(id int) string { return fmt.Sprintf("trivia:question:%d", id) }

// ReplaceQuestions sustituye el banco completo de preguntas
func (r *RedisClient) ReplaceQuestions(ctx context.Context, questions []models.Question) error {
	log.Infof("📚 Cargando %d preguntas a Redis...", len(questions))

	stale, err := r.questionKeys(ctx)
	if err != nil {
		return errs.Upstream(err, "error leyendo preguntas existentes")
	}

	// el banco viejo se borra en la misma transacción que escribe el nuevo
	ids := make([]interface{}, 0, len(questions))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stale...)
		for _, question := range questions {
			questionJSON, err := json.Marshal(question)
			if err != nil {
				return errors.Wrapf(err, "serializando pregunta %d", question.ID)
			}
			pipe.Set(ctx, questionKey(question.ID), questionJSON, 0)
			ids = append(ids, question.ID)
		}
		if len(ids) > 0 {
			pipe.SAdd(ctx, questionIDsKey, ids...)
		}
		return nil
	})
	if err != nil {
		return errs.Upstream(err, "error guardando preguntas")
	}

	log.Infof("✅ %d preguntas cargadas exitosamente en Redis", len(questions))
	return nil
}

// GetQuestion obtiene una pregunta específica por ID
func (r *RedisClient) GetQuestion(ctx context.Context, id int) (*models.Question, error) {
	questionJSON, err := r.client.Get(ctx, questionKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errs.NotFound("pregunta %d no encontrada", id)
		}
		return nil, errs.Upstream(err, "error obteniendo pregunta")
	}

	var question models.Question
	if err := json.Unmarshal([]byte(questionJSON), &question); err != nil {
		return nil, errs.Upstream(err, "error parseando pregunta")
	}

	return &question, nil
}

// ListQuestions obtiene todas las preguntas
func (r *RedisClient) ListQuestions(ctx context.Context) ([]models.Question, error) {
	questionIDs, err := r.client.SMembers(ctx, questionIDsKey).Result()
	if err != nil {
		return nil, errs.Upstream(err, "error obteniendo IDs de preguntas")
	}

	questions := make([]models.Question, 0, len(questionIDs))
	for _, idStr := range questionIDs {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			log.Warnf("⚠️ ID de pregunta inválido: %s", idStr)
			continue
		}

		question, err := r.GetQuestion(ctx, id)
		if err != nil {
			log.WithError(err).Warnf("⚠️ Error obteniendo pregunta %d", id)
			continue
		}

		questions = append(questions, *question)
	}

	return questions, nil
}

// RandomQuestion obtiene una pregunta aleatoria distinta de excludeID. Pide dos
// miembros distintos al set: si uno es el excluido el otro es uniforme sobre
// el resto.
func (r *RedisClient) RandomQuestion(ctx context.Context, excludeID int) (*models.Question, error) {
	candidates, err := r.client.SRandMemberN(ctx, questionIDsKey, 2).Result()
	if err != nil {
		return nil, errs.Upstream(err, "error obteniendo ID de pregunta aleatoria")
	}
	if len(candidates) == 0 {
		return nil, errs.ErrQuestionNotFound
	}

	chosen := candidates[0]
	for _, c := range candidates {
		if c != strconv.Itoa(excludeID) {
			chosen = c
			break
		}
	}

	id, err := strconv.Atoi(chosen)
	if err != nil {
		return nil, errs.Upstream(err, "ID de pregunta inválido")
	}
	return r.GetQuestion(ctx, id)
}

// CountQuestions obtiene el número total de preguntas en Redis
func (r *RedisClient) CountQuestions(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, questionIDsKey).Result()
	if err != nil {
		return 0, errs.Upstream(err, "error obteniendo conteo de preguntas")
	}
	return int(count), nil
}

// questionKeys lista las claves del banco actual, incluido el set de ids
func (r *RedisClient) questionKeys(ctx context.Context) ([]string, error) {
	questionIDs, err := r.client.SMembers(ctx, questionIDsKey).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(questionIDs)+1)
	for _, idStr := range questionIDs {
		keys = append(keys, "trivia:question:"+idStr)
	}
	return append(keys, questionIDsKey), nil
}

// Close cierra la conexión con Redis
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping verifica que Redis esté funcionando
func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errs.Upstream(err, "redis health check failed")
	}
	return nil
}

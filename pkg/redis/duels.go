package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/backsoul/trivia-duel/pkg/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	lobbiesKey   = "trivia:lobbies"
	answerSeqKey = "trivia:answer_seq"
)

func duelKey(id string) string { return "trivia:duel:" + id }

func roomKey(code string) string { return "trivia:room:" + code }

func playersKey(duelID string) string { return "trivia:duel:" + duelID + ":players" }

func answersKey(duelID string) string { return "trivia:duel:" + duelID + ":answers" }

func participantKey(duelID, userID string) string {
	return "trivia:duel:" + duelID + ":player:" + userID
}

func answerKey(duelID, userID string, seq int) string {
	return fmt.Sprintf("trivia:duel:%s:answer:%s:%d", duelID, userID, seq)
}

// duelRecord es la forma en que un duelo vive en un hash de Redis
type duelRecord struct {
	ID                string `redis:"id"`
	RoomCode          string `redis:"room_code"`
	CreatorID         string `redis:"creator_id"`
	CreatedAt         int64  `redis:"created_at"`
	CompletedAt       int64  `redis:"completed_at"`
	Active            bool   `redis:"active"`
	CurrentQuestionID int    `redis:"current_question_id"`
	WinThreshold      int    `redis:"win_threshold"`
	ResolvedRounds    int    `redis:"resolved_rounds"`
	WinnerID          string `redis:"winner_id"`
}

func (d duelRecord) toModel() *models.Duel {
	duel := &models.Duel{
		ID:                d.ID,
		RoomCode:          d.RoomCode,
		CreatorID:         d.CreatorID,
		CreatedAt:         time.Unix(0, d.CreatedAt).UTC(),
		Active:            d.Active,
		CurrentQuestionID: d.CurrentQuestionID,
		WinThreshold:      d.WinThreshold,
		ResolvedRounds:    d.ResolvedRounds,
		WinnerID:          d.WinnerID,
	}
	if d.CompletedAt != 0 {
		at := time.Unix(0, d.CompletedAt).UTC()
		duel.CompletedAt = &at
	}
	return duel
}

func duelFields(d *models.Duel) map[string]interface{} {
	var completedAt int64
	if d.CompletedAt != nil {
		completedAt = d.CompletedAt.UnixNano()
	}
	return map[string]interface{}{
		"id":                  d.ID,
		"room_code":           d.RoomCode,
		"creator_id":          d.CreatorID,
		"created_at":          d.CreatedAt.UnixNano(),
		"completed_at":        completedAt,
		"active":              d.Active,
		"current_question_id": d.CurrentQuestionID,
		"win_threshold":       d.WinThreshold,
		"resolved_rounds":     d.ResolvedRounds,
		"winner_id":           d.WinnerID,
	}
}

type participantRecord struct {
	DuelID      string `redis:"duel_id"`
	UserID      string `redis:"user_id"`
	Username    string `redis:"username"`
	Score       int    `redis:"score"`
	HasTurn     bool   `redis:"has_turn"`
	Left        bool   `redis:"left"`
	AnswerCount int    `redis:"answer_count"`
	JoinedAt    int64  `redis:"joined_at"`
}

func (p participantRecord) toModel() models.Participant {
	return models.Participant{
		DuelID:      p.DuelID,
		UserID:      p.UserID,
		Username:    p.Username,
		Score:       p.Score,
		HasTurn:     p.HasTurn,
		Left:        p.Left,
		AnswerCount: p.AnswerCount,
		JoinedAt:    time.Unix(0, p.JoinedAt).UTC(),
	}
}

func participantFields(p *models.Participant) map[string]interface{} {
	return map[string]interface{}{
		"duel_id":      p.DuelID,
		"user_id":      p.UserID,
		"username":     p.Username,
		"score":        p.Score,
		"has_turn":     p.HasTurn,
		"left":         p.Left,
		"answer_count": p.AnswerCount,
		"joined_at":    p.JoinedAt.UnixNano(),
	}
}

// watch ejecuta fn bajo WATCH y reintenta si otra conexión tocó las claves
func (r *RedisClient) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		return errs.Upstream(err, "error en transacción de Redis")
	}
	return errs.Upstream(redis.TxFailedErr, "demasiados reintentos de transacción")
}

// hashReader cubre tanto *redis.Client como *redis.Tx
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readDuel(ctx context.Context, c hashReader, duelID string) (*duelRecord, error) {
	cmd := c.HGetAll(ctx, duelKey(duelID))
	values, err := cmd.Result()
	if err != nil {
		return nil, errs.Upstream(err, "error obteniendo duelo")
	}
	if len(values) == 0 {
		return nil, errs.ErrDuelNotFound
	}
	var rec duelRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, errs.Upstream(err, "error parseando duelo")
	}
	return &rec, nil
}

func readParticipant(ctx context.Context, c hashReader, duelID, userID string) (*participantRecord, error) {
	cmd := c.HGetAll(ctx, participantKey(duelID, userID))
	values, err := cmd.Result()
	if err != nil {
		return nil, errs.Upstream(err, "error obteniendo participante")
	}
	if len(values) == 0 {
		return nil, errs.ErrParticipantNotFound
	}
	var rec participantRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, errs.Upstream(err, "error parseando participante")
	}
	return &rec, nil
}

// CreateDuel reserva el código de sala con SETNX y guarda duelo y creador
func (r *RedisClient) CreateDuel(ctx context.Context, duel *models.Duel, creator *models.Participant) error {
	ok, err := r.client.SetNX(ctx, roomKey(duel.RoomCode), duel.ID, 0).Result()
	if err != nil {
		return errs.Upstream(err, "error reservando código de sala")
	}
	if !ok {
		return errs.ErrRoomCodeTaken
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, duelKey(duel.ID), duelFields(duel))
		pipe.HSet(ctx, participantKey(duel.ID, creator.UserID), participantFields(creator))
		pipe.RPush(ctx, playersKey(duel.ID), creator.UserID)
		pipe.ZAdd(ctx, lobbiesKey, redis.Z{Score: float64(duel.CreatedAt.UnixMilli()), Member: duel.ID})
		return nil
	})
	if err != nil {
		r.client.Del(ctx, roomKey(duel.RoomCode))
		return errs.Upstream(err, "error guardando duelo")
	}
	return nil
}

// GetDuel obtiene un duelo por ID
func (r *RedisClient) GetDuel(ctx context.Context, duelID string) (*models.Duel, error) {
	rec, err := readDuel(ctx, r.client, duelID)
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// GetDuelByRoomCode resuelve un código de sala
func (r *RedisClient) GetDuelByRoomCode(ctx context.Context, roomCode string) (*models.Duel, error) {
	duelID, err := r.client.Get(ctx, roomKey(roomCode)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errs.ErrRoomNotFound
		}
		return nil, errs.Upstream(err, "error resolviendo código de sala")
	}
	return r.GetDuel(ctx, duelID)
}

// SetCurrentQuestion asigna la pregunta de la ronda
func (r *RedisClient) SetCurrentQuestion(ctx context.Context, duelID string, questionID int) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		if _, err := readDuel(ctx, tx, duelID); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, duelKey(duelID), "current_question_id", questionID)
			return nil
		})
		return err
	}, duelKey(duelID))
}

// CompleteDuel marca el duelo como terminado con ganador
func (r *RedisClient) CompleteDuel(ctx context.Context, duelID, winnerID string, at time.Time) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		rec, err := readDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		if !rec.Active {
			return errs.ErrDuelCompleted
		}
		players, err := tx.LRange(ctx, playersKey(duelID), 0, -1).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, duelKey(duelID),
				"active", false,
				"completed_at", at.UnixNano(),
				"winner_id", winnerID,
			)
			for _, userID := range players {
				pipe.HSet(ctx, participantKey(duelID, userID), "has_turn", false)
			}
			pipe.ZRem(ctx, lobbiesKey, duelID)
			return nil
		})
		return err
	}, duelKey(duelID), playersKey(duelID))
}

// ListStaleLobbies lista duelos creados antes de createdBefore sin oponente
func (r *RedisClient) ListStaleLobbies(ctx context.Context, createdBefore time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, lobbiesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(createdBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, errs.Upstream(err, "error listando salas")
	}
	return ids, nil
}

// ExpireLobby cierra una sala que nunca recibió oponente
func (r *RedisClient) ExpireLobby(ctx context.Context, duelID string, at time.Time) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		rec, err := readDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		count, err := tx.LLen(ctx, playersKey(duelID)).Result()
		if err != nil {
			return err
		}
		if !rec.Active || count >= models.Capacity {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, lobbiesKey, duelID)
				return nil
			})
			if err != nil {
				return err
			}
			return errs.ErrNotLobby
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, duelKey(duelID), "active", false, "completed_at", at.UnixNano())
			pipe.HSet(ctx, participantKey(duelID, rec.CreatorID), "has_turn", false)
			pipe.ZRem(ctx, lobbiesKey, duelID)
			return nil
		})
		return err
	}, duelKey(duelID), playersKey(duelID))
}

// AddParticipant agrega un jugador respetando la capacidad del duelo
func (r *RedisClient) AddParticipant(ctx context.Context, p *models.Participant) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		if _, err := readDuel(ctx, tx, p.DuelID); err != nil {
			return err
		}
		players, err := tx.LRange(ctx, playersKey(p.DuelID), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, userID := range players {
			if userID == p.UserID {
				return errs.ErrAlreadyJoined
			}
		}
		if len(players) >= models.Capacity {
			return errs.ErrDuelFull
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, participantKey(p.DuelID, p.UserID), participantFields(p))
			pipe.RPush(ctx, playersKey(p.DuelID), p.UserID)
			if len(players)+1 >= models.Capacity {
				pipe.ZRem(ctx, lobbiesKey, p.DuelID)
			}
			return nil
		})
		return err
	}, duelKey(p.DuelID), playersKey(p.DuelID))
}

// ListParticipants devuelve los participantes en orden de llegada
func (r *RedisClient) ListParticipants(ctx context.Context, duelID string) ([]models.Participant, error) {
	players, err := r.client.LRange(ctx, playersKey(duelID), 0, -1).Result()
	if err != nil {
		return nil, errs.Upstream(err, "error listando participantes")
	}

	participants := make([]models.Participant, 0, len(players))
	for _, userID := range players {
		rec, err := readParticipant(ctx, r.client, duelID, userID)
		if err != nil {
			return nil, err
		}
		participants = append(participants, rec.toModel())
	}
	return participants, nil
}

// MarkLeft marca al participante como retirado
func (r *RedisClient) MarkLeft(ctx context.Context, duelID, userID string) error {
	key := participantKey(duelID, userID)
	return r.watch(ctx, func(tx *redis.Tx) error {
		if _, err := readParticipant(ctx, tx, duelID, userID); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "left", true)
			return nil
		})
		return err
	}, key)
}

// SetTurn entrega el turno a userID
func (r *RedisClient) SetTurn(ctx context.Context, duelID, userID string) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		players, err := tx.LRange(ctx, playersKey(duelID), 0, -1).Result()
		if err != nil {
			return err
		}
		found := userID == ""
		for _, id := range players {
			if id == userID {
				found = true
			}
		}
		if !found {
			return errs.ErrParticipantNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range players {
				pipe.HSet(ctx, participantKey(duelID, id), "has_turn", id == userID)
			}
			return nil
		})
		return err
	}, playersKey(duelID))
}

// AppendAnswer guarda la respuesta si su secuencia es la siguiente del jugador
// y el jugador tiene el turno
func (r *RedisClient) AppendAnswer(ctx context.Context, answer *models.Answer) error {
	id, err := r.client.Incr(ctx, answerSeqKey).Result()
	if err != nil {
		return errs.Upstream(err, "error generando ID de respuesta")
	}
	answer.ID = id

	payload, err := json.Marshal(answer)
	if err != nil {
		return errs.Upstream(err, "error serializando respuesta")
	}

	pKey := participantKey(answer.DuelID, answer.UserID)
	return r.watch(ctx, func(tx *redis.Tx) error {
		rec, err := readParticipant(ctx, tx, answer.DuelID, answer.UserID)
		if err != nil {
			return err
		}
		if answer.Sequence <= rec.AnswerCount {
			return errs.ErrDuplicateAnswer
		}
		if answer.Sequence != rec.AnswerCount+1 {
			return errs.Conflict("secuencia %d fuera de orden, se esperaba %d", answer.Sequence, rec.AnswerCount+1)
		}
		if !rec.HasTurn {
			return errs.ErrNotYourTurn
		}

		// responder consume el turno
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, answerKey(answer.DuelID, answer.UserID, answer.Sequence), payload, 0)
			pipe.RPush(ctx, answersKey(answer.DuelID), payload)
			pipe.HSet(ctx, pKey, "answer_count", answer.Sequence, "has_turn", false)
			return nil
		})
		return err
	}, pKey)
}

// GetAnswer obtiene la respuesta de un jugador en una ronda
func (r *RedisClient) GetAnswer(ctx context.Context, duelID, userID string, sequence int) (*models.Answer, error) {
	payload, err := r.client.Get(ctx, answerKey(duelID, userID, sequence)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errs.ErrAnswerNotFound
		}
		return nil, errs.Upstream(err, "error obteniendo respuesta")
	}
	var answer models.Answer
	if err := json.Unmarshal(payload, &answer); err != nil {
		return nil, errs.Upstream(err, "error parseando respuesta")
	}
	return &answer, nil
}

// ListAnswers devuelve el historial de respuestas del duelo en orden de llegada
func (r *RedisClient) ListAnswers(ctx context.Context, duelID string) ([]models.Answer, error) {
	payloads, err := r.client.LRange(ctx, answersKey(duelID), 0, -1).Result()
	if err != nil {
		return nil, errs.Upstream(err, "error listando respuestas")
	}
	answers := make([]models.Answer, 0, len(payloads))
	for _, p := range payloads {
		var a models.Answer
		if err := json.Unmarshal([]byte(p), &a); err != nil {
			return nil, errs.Upstream(errors.Wrap(err, p), "error parseando respuesta")
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// RecordRound consume la ronda y suma el punto del ganador en una sola transacción
func (r *RedisClient) RecordRound(ctx context.Context, duelID string, round int, winnerID string) error {
	keys := []string{duelKey(duelID)}
	if winnerID != "" {
		keys = append(keys, participantKey(duelID, winnerID))
	}

	return r.watch(ctx, func(tx *redis.Tx) error {
		rec, err := readDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		if rec.ResolvedRounds >= round {
			return errs.ErrRoundResolved
		}
		if rec.ResolvedRounds != round-1 {
			return errs.Conflict("ronda %d fuera de orden, resueltas %d", round, rec.ResolvedRounds)
		}
		if winnerID != "" {
			if _, err := readParticipant(ctx, tx, duelID, winnerID); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, duelKey(duelID), "resolved_rounds", round)
			if winnerID != "" {
				pipe.HIncrBy(ctx, participantKey(duelID, winnerID), "score", 1)
			}
			return nil
		})
		return err
	}, keys...)
}

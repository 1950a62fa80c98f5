package models

import "time"

// DuelState estado derivado de un duelo
type DuelState string

const (
	StateWaitingForOpponent DuelState = "WAITING_FOR_OPPONENT"
	StateInProgress         DuelState = "IN_PROGRESS"
	StateCompleted          DuelState = "COMPLETED"
	StateExpired            DuelState = "EXPIRED"
)

// Capacity es el número de participantes de un duelo
const Capacity = 2

// DefaultWinThreshold es la puntuación que decide el duelo
const DefaultWinThreshold = 3

// Duel representa una partida entre dos jugadores
type Duel struct {
	ID                string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RoomCode          string     `json:"roomCode" gorm:"type:varchar(6);uniqueIndex;not null"`
	CreatorID         string     `json:"creatorId" gorm:"index;not null"`
	CreatedAt         time.Time  `json:"createdAt" gorm:"index"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	Active            bool       `json:"active" gorm:"index"`
	CurrentQuestionID int        `json:"currentQuestionId"`
	WinThreshold      int        `json:"winThreshold" gorm:"not null;default:3"`
	ResolvedRounds    int        `json:"resolvedRounds" gorm:"not null;default:0"`
	WinnerID          string     `json:"winnerId,omitempty"`
}

// Participant es un jugador dentro de un duelo. Nunca se borra, solo se marca
// como Left.
type Participant struct {
	DuelID      string    `json:"duelId" gorm:"primaryKey;type:varchar(36)"`
	UserID      string    `json:"userId" gorm:"primaryKey"`
	Username    string    `json:"username"`
	Score       int       `json:"score" gorm:"not null;default:0"`
	HasTurn     bool      `json:"hasTurn"`
	Left        bool      `json:"left"`
	AnswerCount int       `json:"answerCount" gorm:"not null;default:0"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// DisplayName nombre a mostrar en notificaciones
func (p Participant) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.UserID
}

// Answer respuesta de un participante. Sequence es la posición de la respuesta
// en el historial del participante y define la ronda a la que pertenece.
type Answer struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	DuelID         string    `json:"duelId" gorm:"type:varchar(36);not null;uniqueIndex:ux_answer_round,priority:1"`
	UserID         string    `json:"userId" gorm:"not null;uniqueIndex:ux_answer_round,priority:2"`
	Sequence       int       `json:"sequence" gorm:"not null;uniqueIndex:ux_answer_round,priority:3"`
	QuestionID     int       `json:"questionId"`
	SelectedOption string    `json:"selectedOption,omitempty"`
	TimeTaken      int       `json:"timeTaken"` // en segundos
	IsCorrect      bool      `json:"isCorrect"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// AnswerSubmission datos que envía el jugador al responder
type AnswerSubmission struct {
	TimeTaken      int    `json:"timeTaken"`
	IsCorrect      bool   `json:"isCorrect"`
	SelectedOption string `json:"selectedOption,omitempty"`
	Sequence       int    `json:"sequence,omitempty"` // opcional, protege contra reenvíos
}

// Round empareja la N-ésima respuesta de cada participante
type Round struct {
	Number   int      `json:"number"`
	Answers  []Answer `json:"answers"`
	Complete bool     `json:"complete"`
	WinnerID string   `json:"winnerId,omitempty"`
}

// MatchResult resultado final que se notifica a ambos jugadores
type MatchResult struct {
	DuelID      string `json:"duelId"`
	WinnerID    string `json:"winnerId"`
	WinnerName  string `json:"winnerName"`
	WinnerScore int    `json:"winnerScore"`
	LoserID     string `json:"loserId"`
	LoserName   string `json:"loserName"`
	LoserScore  int    `json:"loserScore"`
}

// DuelSnapshot vista de lectura de un duelo para la capa de presentación
type DuelSnapshot struct {
	Duel            Duel          `json:"duel"`
	State           DuelState     `json:"state"`
	Participants    []Participant `json:"participants"`
	CurrentQuestion *Question     `json:"currentQuestion,omitempty"`
	Round           int           `json:"round"`
	Abandoned       bool          `json:"abandoned"`
	TurnUserID      string        `json:"turnUserId,omitempty"`
}

// StateOf deriva el estado del duelo a partir de sus datos persistidos
func StateOf(d Duel, participantCount int) DuelState {
	switch {
	case !d.Active && d.WinnerID != "":
		return StateCompleted
	case !d.Active:
		return StateExpired
	case participantCount < Capacity:
		return StateWaitingForOpponent
	default:
		return StateInProgress
	}
}

// Participant busca un participante por usuario
func (s *DuelSnapshot) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// DuelCreateRequest request para crear un duelo
type DuelCreateRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// DuelJoinRequest request para unirse con código de sala
type DuelJoinRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomCode string `json:"roomCode"`
}

// DuelLeaveRequest request para abandonar un duelo
type DuelLeaveRequest struct {
	UserID string `json:"userId"`
}

// AnswerRequest request para responder la pregunta actual
type AnswerRequest struct {
	UserID string `json:"userId"`
	AnswerSubmission
}

// DuelResponse respuesta de duelo
type DuelResponse struct {
	Duel   *DuelSnapshot `json:"duel,omitempty"`
	Rounds []Round       `json:"rounds,omitempty"`
}

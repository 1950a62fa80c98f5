package services

import "github.com/backsoul/trivia-duel/pkg/models"

// Outcome es el desenlace de una ronda
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeA
	OutcomeB
)

func (o Outcome) String() string {
	switch o {
	case OutcomeA:
		return "a"
	case OutcomeB:
		return "b"
	default:
		return "none"
	}
}

// ResolveRound decide el ganador de una ronda:
//   - ambas correctas: gana el menor tiempo, empate si son iguales
//   - solo una correcta: gana esa
//   - ninguna correcta: sin ganador
func ResolveRound(a, b models.Answer) Outcome {
	switch {
	case a.IsCorrect && b.IsCorrect:
		if a.TimeTaken < b.TimeTaken {
			return OutcomeA
		}
		if b.TimeTaken < a.TimeTaken {
			return OutcomeB
		}
		return OutcomeNone
	case a.IsCorrect:
		return OutcomeA
	case b.IsCorrect:
		return OutcomeB
	default:
		return OutcomeNone
	}
}

// roundWinner traduce el desenlace al usuario ganador, vacío si no hay
func roundWinner(a, b models.Answer) string {
	switch ResolveRound(a, b) {
	case OutcomeA:
		return a.UserID
	case OutcomeB:
		return b.UserID
	default:
		return ""
	}
}

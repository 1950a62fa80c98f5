// Package errs define la taxonomía de errores del duelo: not_found, conflict,
// validation y upstream. Los tres primeros son terminales y se devuelven al
// cliente tal cual; upstream envuelve fallos de Redis, Postgres o del proveedor
// de notificaciones.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind clasifica un error
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream"
)

// Error es el único tipo de error que cruza las capas de servicio
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrDuelNotFound        = &Error{Kind: KindNotFound, Message: "duelo no encontrado"}
	ErrRoomNotFound        = &Error{Kind: KindNotFound, Message: "código de sala desconocido"}
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Message: "el usuario no participa en el duelo"}
	ErrOpponentNotFound    = &Error{Kind: KindNotFound, Message: "el duelo no tiene oponente"}
	ErrQuestionNotFound    = &Error{Kind: KindNotFound, Message: "no hay preguntas disponibles"}
	ErrAnswerNotFound      = &Error{Kind: KindNotFound, Message: "respuesta no encontrada"}

	ErrDuelFull          = &Error{Kind: KindConflict, Message: "el duelo ya tiene dos participantes"}
	ErrAlreadyJoined     = &Error{Kind: KindConflict, Message: "el usuario ya está en el duelo"}
	ErrRoomCodeTaken     = &Error{Kind: KindConflict, Message: "código de sala en uso"}
	ErrNotYourTurn       = &Error{Kind: KindConflict, Message: "no es tu turno"}
	ErrDuplicateAnswer   = &Error{Kind: KindConflict, Message: "respuesta duplicada para esta ronda"}
	ErrDuelNotInProgress = &Error{Kind: KindConflict, Message: "el duelo no está en curso"}
	ErrDuelCompleted     = &Error{Kind: KindConflict, Message: "el duelo ya terminó"}
	ErrRoundResolved     = &Error{Kind: KindConflict, Message: "la ronda ya fue resuelta"}
	ErrNotLobby          = &Error{Kind: KindConflict, Message: "el duelo ya no espera oponente"}
)

// NotFound crea un error not_found con mensaje libre
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict crea un error conflict con mensaje libre
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation crea un error de validación de entrada
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Upstream envuelve un fallo de un colaborador externo. Si err ya tiene un
// Kind se devuelve sin tocar para no perder la clasificación.
func Upstream(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUpstream, Message: message, Err: errors.WithStack(err)}
}

// KindOf devuelve la clasificación de err. Cualquier error sin Kind se trata
// como upstream.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsUpstream(err error) bool   { return KindOf(err) == KindUpstream }

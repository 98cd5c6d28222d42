package game

import "fmt"

// Code is a machine-readable error code.
type Code string

const (
	CodeSceneNotFound    Code = "SCENE_NOT_FOUND"
	CodeChoiceUnknown    Code = "CHOICE_UNKNOWN"
	CodeChoiceDisabled   Code = "CHOICE_DISABLED"
	CodeInvalidPhase     Code = "INVALID_PHASE"
	CodeInvalidStage     Code = "INVALID_STAGE"
	CodeInvalidCharacter Code = "INVALID_CHARACTER"
	CodeEmptyAnswer      Code = "EMPTY_ANSWER"
	CodeUnknownAction    Code = "UNKNOWN_ACTION"
)

// Error is a rejected action. The session state is unchanged whenever
// Dispatch returns one.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, ErrChoiceDisabled)
// works regardless of message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrSceneNotFound    = &Error{Code: CodeSceneNotFound}
	ErrChoiceUnknown    = &Error{Code: CodeChoiceUnknown}
	ErrChoiceDisabled   = &Error{Code: CodeChoiceDisabled}
	ErrInvalidPhase     = &Error{Code: CodeInvalidPhase}
	ErrInvalidStage     = &Error{Code: CodeInvalidStage}
	ErrInvalidCharacter = &Error{Code: CodeInvalidCharacter}
	ErrEmptyAnswer      = &Error{Code: CodeEmptyAnswer}
)

package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports an invalid request field.
// It is fatal: the run moves to Failed before any provider is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation returns true if err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StageError is a non-fatal failure recorded while a stage fell back to
// default data.
type StageError struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Err     error     `json:"-"`
}

// NewStageError builds a StageError stamped with the current time.
func NewStageError(stage Stage, err error) StageError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StageError{Stage: stage, Message: msg, At: time.Now(), Err: err}
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e StageError) Unwrap() error {
	return e.Err
}

// PlanFailure is returned when a run ends in the Failed stage.
type PlanFailure struct {
	Stage  Stage
	Err    error
	Errors []StageError
}

func (e *PlanFailure) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("plan failed at %s: %v", e.Stage, e.Err)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		msgs = append(msgs, se.Error())
	}
	return fmt.Sprintf("plan failed at %s: %v (stage errors: %s)", e.Stage, e.Err, strings.Join(msgs, "; "))
}

func (e *PlanFailure) Unwrap() error {
	return e.Err
}

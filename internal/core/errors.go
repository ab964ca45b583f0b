package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies audit failures.
type ErrorKind string

const (
	// KindDegraded marks a stage failure that was absorbed with fallback data.
	KindDegraded ErrorKind = "degraded"
	// KindValidation marks bad input detected before any stage ran.
	KindValidation ErrorKind = "validation"
	// KindFatal marks a run that cannot produce a result.
	KindFatal ErrorKind = "fatal"
	// KindInvariant marks a scoring result outside its contract.
	KindInvariant ErrorKind = "invariant"
)

// AuditError is the error type returned by the audit pipeline.
type AuditError struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Err     error
}

func (e *AuditError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		b.WriteString(" [")
		b.WriteString(e.Stage)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuditError) Unwrap() error { return e.Err }

// NewValidationError reports invalid input.
func NewValidationError(message string) *AuditError {
	return &AuditError{Kind: KindValidation, Message: message}
}

// NewFatalError reports an unrecoverable stage failure.
func NewFatalError(stage, message string, err error) *AuditError {
	return &AuditError{Kind: KindFatal, Stage: stage, Message: message, Err: err}
}

// NewDegradedError reports a stage failure that was replaced by fallback data.
func NewDegradedError(stage string, err error) *AuditError {
	return &AuditError{Kind: KindDegraded, Stage: stage, Message: "stage degraded", Err: err}
}

// NewInvariantError reports a contract violation in produced data.
func NewInvariantError(stage, format string, args ...any) *AuditError {
	return &AuditError{Kind: KindInvariant, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps an AuditError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

const maxPublicMessage = 200

// PublicMessage is the short failure text stored on a failed run.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ae *AuditError
	if errors.As(err, &ae) {
		msg = ae.Message
		if ae.Stage != "" {
			msg = ae.Stage + ": " + msg
		}
	}
	msg = strings.TrimSpace(strings.ReplaceAll(msg, "\n", " "))
	if len(msg) > maxPublicMessage {
		cut := maxPublicMessage - 3
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

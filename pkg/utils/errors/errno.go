// Package errors provides the errno table used by docmind.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): service code, 00 is shared, 21 is docmind
//	BB  (00-99): category code (see code.go)
//	CCC (000-999): sequence number inside the category
//
// Usage:
//
//	return errors.ErrJobNotFound.WithMessagef("job %s not found", id)
//	return errors.ErrDatabase.WithCause(err)
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Errno is a structured error with a stable code and bilingual messages.
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageFR string     `json:"message_fr,omitempty"`

	cause error
}

// New creates an Errno without registering it.
func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageFR string) *Errno {
	return &Errno{
		Code:      code,
		HTTP:      httpStatus,
		GRPCCode:  grpcCode,
		MessageEN: messageEN,
		MessageFR: messageFR,
	}
}

// Error implements the error interface.
func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
}

// Unwrap returns the underlying cause.
func (e *Errno) Unwrap() error {
	return e.cause
}

// Is matches on the error code so that errors.Is works on copies.
func (e *Errno) Is(target error) bool {
	if t, ok := target.(*Errno); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *Errno) clone() *Errno {
	cp := *e
	return &cp
}

// WithCause returns a copy carrying cause.
func (e *Errno) WithCause(cause error) *Errno {
	cp := e.clone()
	cp.cause = cause
	return cp
}

// WithMessage returns a copy with a custom English message.
func (e *Errno) WithMessage(msg string) *Errno {
	cp := e.clone()
	cp.MessageEN = msg
	return cp
}

// WithMessagef returns a copy with a formatted English message.
func (e *Errno) WithMessagef(format string, args ...interface{}) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message returns the message for lang, falling back to English.
func (e *Errno) Message(lang string) string {
	if (lang == "fr" || lang == "fr-FR" || lang == "fr_FR") && e.MessageFR != "" {
		return e.MessageFR
	}
	return e.MessageEN
}

// HTTPStatus returns the HTTP status code, 500 when unset.
func (e *Errno) HTTPStatus() int {
	if e.HTTP != 0 {
		return e.HTTP
	}
	return http.StatusInternalServerError
}

// GRPCStatus returns the gRPC status code, Internal when unset.
func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode != codes.OK {
		return e.GRPCCode
	}
	return codes.Internal
}

// FromError converts any error to an Errno.
// Errors that are not an Errno anywhere in their chain become ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// remoteErrnos are the shared errors a remote gRPC status can resolve to.
var remoteErrnos = []*Errno{ErrUnavailable, ErrTimeout, ErrInvalidParam}

// FromGRPC converts an error returned by a gRPC backend such as Milvus.
// A status whose code matches one of the shared errors maps to it,
// anything else becomes fallback. The original error stays as the cause.
func FromGRPC(err error, fallback *Errno) *Errno {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		for _, e := range remoteErrnos {
			if e.GRPCStatus() == st.Code() {
				return e.WithCause(err)
			}
		}
	}
	return fallback.WithCause(err)
}

package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

func validateCodeParams(service, category, sequence int) {
	if service < 0 || service > 99 {
		panic(fmt.Sprintf("errors: service code must be 0-99, got %d", service))
	}
	if category < 0 || category > 99 {
		panic(fmt.Sprintf("errors: category code must be 0-99, got %d", category))
	}
	if sequence < 0 || sequence > 999 {
		panic(fmt.Sprintf("errors: sequence must be 0-999, got %d", sequence))
	}
}

// NewError builds, validates and registers an Errno.
func NewError(service, category, sequence int, httpStatus int, grpcCode codes.Code, messageEN, messageFR string) *Errno {
	validateCodeParams(service, category, sequence)
	if messageEN == "" {
		panic("errors: english message is required")
	}
	return Register(New(MakeCode(service, category, sequence), httpStatus, grpcCode, messageEN, messageFR))
}

// NewRequestErr registers a 400 error.
func NewRequestErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryRequest, sequence, http.StatusBadRequest, codes.InvalidArgument, en, fr)
}

// NewNotFoundErr registers a 404 error.
func NewNotFoundErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryResource, sequence, http.StatusNotFound, codes.NotFound, en, fr)
}

// NewInternalErr registers a 500 error.
func NewInternalErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryInternal, sequence, http.StatusInternalServerError, codes.Internal, en, fr)
}

// NewDatabaseErr registers a 500 database error.
func NewDatabaseErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryDatabase, sequence, http.StatusInternalServerError, codes.Internal, en, fr)
}

// NewNetworkErr registers a 503 error.
func NewNetworkErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryNetwork, sequence, http.StatusServiceUnavailable, codes.Unavailable, en, fr)
}

// NewTimeoutErr registers a 504 error.
func NewTimeoutErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryTimeout, sequence, http.StatusGatewayTimeout, codes.DeadlineExceeded, en, fr)
}

// NewConfigErr registers a 500 configuration error.
func NewConfigErr(service, sequence int, en, fr string) *Errno {
	return NewError(service, CategoryConfig, sequence, http.StatusInternalServerError, codes.FailedPrecondition, en, fr)
}

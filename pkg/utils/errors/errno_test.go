package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMakeCodeRoundTrip(t *testing.T) {
	code := MakeCode(ServiceDocmind, CategoryResource, 7)
	assert.Equal(t, 2104007, code)

	svc, cat, seq := ParseCode(code)
	assert.Equal(t, ServiceDocmind, svc)
	assert.Equal(t, CategoryResource, cat)
	assert.Equal(t, 7, seq)
	assert.True(t, IsClientError(code))
	assert.False(t, IsServerError(code))
}

func TestErrnoWithCauseKeepsIdentity(t *testing.T) {
	cause := stderrors.New("boom")
	err := ErrJobNotFound.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrJobNotFound))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Equal(t, codes.NotFound, err.GRPCStatus())
	assert.Contains(t, err.Error(), "boom")
}

func TestErrnoMessageLang(t *testing.T) {
	assert.Equal(t, "URL manquante.", ErrMissingURL.Message("fr"))
	assert.Equal(t, "URL is required", ErrMissingURL.Message("en"))
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: -1},
		{name: "plain error", err: stderrors.New("x"), want: ErrInternal.Code},
		{name: "errno", err: ErrInvalidPDF, want: ErrInvalidPDF.Code},
		{name: "wrapped errno", err: fmt.Errorf("fetch: %w", ErrDownloadFailed), want: ErrDownloadFailed.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromError(tt.err)
			if tt.err == nil {
				assert.Nil(t, e)
				return
			}
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.Code)
		})
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(New(ErrJobNotFound.Code, 404, codes.NotFound, "dup", ""))
	})

	got, ok := Lookup(ErrJobNotFound.Code)
	require.True(t, ok)
	assert.Equal(t, "Job not found", got.MessageEN)
}

func TestFromGRPC(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       *Errno
		wantStatus int
	}{
		{"不可用", status.Error(codes.Unavailable, "connection refused"), ErrUnavailable, http.StatusServiceUnavailable},
		{"超时", status.Error(codes.DeadlineExceeded, "slow"), ErrTimeout, http.StatusGatewayTimeout},
		{"包装后的状态", fmt.Errorf("failed to search: %w", status.Error(codes.Unavailable, "down")), ErrUnavailable, http.StatusServiceUnavailable},
		{"未映射的状态码", status.Error(codes.Internal, "boom"), ErrVectorStore, http.StatusInternalServerError},
		{"普通错误", stderrors.New("plain"), ErrVectorStore, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromGRPC(tt.err, ErrVectorStore)
			require.NotNil(t, e)
			assert.True(t, stderrors.Is(e, tt.want))
			assert.True(t, stderrors.Is(e, tt.err))
			assert.Equal(t, tt.wantStatus, e.HTTPStatus())
		})
	}

	assert.Nil(t, FromGRPC(nil, ErrVectorStore))
}

package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/docmind/pkg/options/server/http"
	apierrors "github.com/kart-io/docmind/pkg/utils/errors"
)

func TestServerLifecycle(t *testing.T) {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	s := NewServer(opts)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(base + "/nope")
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, float64(apierrors.ErrRouteNotFound.Code), env["code"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = http.Get(base + "/ping")
	assert.Error(t, err)
}

func TestServerStartBindError(t *testing.T) {
	opts := options.NewOptions()
	opts.Addr = "127.0.0.1:0"
	first := NewServer(opts)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	clash := options.NewOptions()
	clash.Addr = first.Addr()
	assert.Error(t, NewServer(clash).Start(context.Background()))
}

func TestStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(nil).Stop(context.Background()))
}

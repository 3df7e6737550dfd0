// Package http provides the gin based HTTP server of docmind.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/pkg/infra/middleware"
	options "github.com/kart-io/docmind/pkg/options/server/http"
	apierrors "github.com/kart-io/docmind/pkg/utils/errors"
	"github.com/kart-io/docmind/pkg/utils/response"
)

// Server wraps a gin engine and its net/http server.
type Server struct {
	opts   *options.Options
	engine *gin.Engine

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server with recovery, request id and logger middleware applied.
// 中间件必须在注册路由之前挂载，否则子路由组不会继承。
func NewServer(opts *options.Options) *Server {
	if opts == nil {
		opts = options.NewOptions()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(), middleware.RequestID(), middleware.Logger())
	engine.NoRoute(func(c *gin.Context) {
		resp := response.Err(apierrors.ErrRouteNotFound).WithRequestID(middleware.GetRequestID(c))
		c.JSON(resp.HTTPStatus(), resp)
	})
	return &Server{opts: opts, engine: engine}
}

// Engine returns the gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
// 绑定失败同步返回，运行期错误写入日志。
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server stopped unexpectedly", "addr", ln.Addr().String(), "error", err.Error())
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	default:
		logger.Infow("HTTP server started", "addr", ln.Addr().String())
		return nil
	}
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

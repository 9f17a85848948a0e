// Package api serves the read model and the user action surface over HTTP.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/pos"
	"github.com/manifest-network/chainview/internal/pow"
	"github.com/manifest-network/chainview/internal/reconciler"
	"github.com/manifest-network/chainview/internal/store"
	"github.com/manifest-network/chainview/internal/wallet"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Dialer opens a chain client for the connect action.
type Dialer func(ctx context.Context) (chain.Client, error)

// Deps are the components served by the API.
type Deps struct {
	Store      *store.Store
	Session    *wallet.Session
	Reconciler *reconciler.Reconciler
	Pow        *pow.Simulator
	Pos        *pos.Simulator
	Dial       Dialer
	Gatherer   prometheus.Gatherer
}

// Server is the HTTP surface of chainview.
type Server struct {
	deps Deps
	echo *echo.Echo
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{deps: deps, echo: e}

	e.GET("/api/blocks", s.getBlocks)
	e.GET("/api/transactions", s.getTransactions)
	e.GET("/api/session", s.getSession)
	e.GET("/api/events", s.streamEvents)

	e.GET("/api/pow/blocks", s.getPowBlocks)
	e.GET("/api/pow/status", s.getPowStatus)
	e.GET("/api/pos/blocks", s.getPosBlocks)
	e.GET("/api/pos/validators", s.getValidators)
	e.GET("/api/pos/status", s.getPosStatus)

	e.POST("/api/connect", s.connect)
	e.POST("/api/disconnect", s.disconnect)
	e.POST("/api/network/switch", s.switchNetwork)
	e.POST("/api/transfers", s.submitTransfer)
	e.POST("/api/pow/mine", s.mine)
	e.POST("/api/pos/validate", s.validate)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve serves on lis until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.echo.Listener = lis
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()
	slog.Info("HTTP server listening", "address", lis.Addr().String())

	select {
	case <-ctx.Done():
		if err := s.echo.Shutdown(context.Background()); err != nil {
			return errors.Wrap(err, "failed to shut down HTTP server")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server failed")
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, lis)
}

func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

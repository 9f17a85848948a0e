package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo"
	"github.com/pkg/errors"

	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/pos"
	"github.com/manifest-network/chainview/internal/pow"
	"github.com/manifest-network/chainview/internal/reconciler"
	"github.com/manifest-network/chainview/internal/wallet"
)

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type mineRequest struct {
	Difficulty *int `json:"difficulty"`
}

type actionResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// httpError maps domain errors to HTTP status codes. The message is the error text.
func httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, wallet.ErrInvalidRecipient),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, pow.ErrInvalidDifficulty):
		code = http.StatusBadRequest
	case errors.Is(err, wallet.ErrNotConnected):
		code = http.StatusPreconditionFailed
	case errors.Is(err, wallet.ErrNetworkMismatch),
		errors.Is(err, pow.ErrMiningInProgress),
		errors.Is(err, pos.ErrValidationInProgress):
		code = http.StatusConflict
	case errors.Is(err, pow.ErrEmptyChain),
		errors.Is(err, pos.ErrEmptyChain),
		errors.Is(err, pos.ErrEmptyRegistry):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrSendRejected):
		code = http.StatusBadGateway
	}
	return echo.NewHTTPError(code, err.Error())
}

func (s *Server) getBlocks(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.deps.Store.LatestBlocks(limit))
}

func (s *Server) getTransactions(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.deps.Store.RecentTransactions(limit))
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Session.State())
}

func (s *Server) getPowBlocks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Pow.Blocks())
}

func (s *Server) getPowStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Pow.Status())
}

func (s *Server) getPosBlocks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Pos.Blocks())
}

func (s *Server) getValidators(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Pos.Registry().Validators())
}

func (s *Server) getPosStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Pos.Status())
}

func (s *Server) connect(c echo.Context) error {
	if s.deps.Dial == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no chain RPC endpoint configured")
	}
	ctx := c.Request().Context()
	client, err := s.deps.Dial(ctx)
	if err != nil {
		slog.Warn("Failed to open chain client", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.deps.Reconciler.Connect(ctx, client); err != nil {
		slog.Warn("Failed to connect wallet", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, s.deps.Session.State())
}

func (s *Server) disconnect(c echo.Context) error {
	s.deps.Reconciler.Disconnect()
	return c.JSON(http.StatusOK, s.deps.Session.State())
}

func (s *Server) switchNetwork(c echo.Context) error {
	if err := s.deps.Session.SwitchNetwork(c.Request().Context()); err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	s.deps.Reconciler.Trigger(reconciler.TriggerConnect)
	return c.JSON(http.StatusOK, s.deps.Session.State())
}

func (s *Server) submitTransfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed transfer request")
	}
	tx, err := s.deps.Session.SubmitTransfer(c.Request().Context(), req.Recipient, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, tx)
}

func (s *Server) mine(c echo.Context) error {
	var req mineRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed mine request")
		}
	}
	difficulty := s.deps.Pow.Difficulty()
	if req.Difficulty != nil {
		difficulty = *req.Difficulty
	}

	err := s.deps.Pow.MineAsync(difficulty, nil, nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, actionResponse{Status: "mining", Data: s.deps.Pow.Status()})
}

func (s *Server) validate(c echo.Context) error {
	err := s.deps.Pos.CreateBlockAsync(func(_ *models.PosBlock, err error) {
		if err != nil {
			slog.Error("Block validation failed", "error", err)
		}
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, actionResponse{Status: "validating", Data: s.deps.Pos.Status()})
}

// streamEvents relays store events as server-sent events until the client goes away.
func (s *Server) streamEvents(c echo.Context) error {
	id, events := s.deps.Store.Subscribe()
	defer s.deps.Store.Unsubscribe(id)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return errors.Wrap(err, "failed to encode event")
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

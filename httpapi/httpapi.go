// Package httpapi exposes the process's external HTTP surface: the chat
// transport's inbound webhook, an admin endpoint to trigger an
// announcement send, and the standard health/metrics probes
// (SPEC_FULL ambient stack: HTTP surface).
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coworklink/coworklink/announce"
	"github.com/coworklink/coworklink/callback"
	"github.com/coworklink/coworklink/chatengine"
	"github.com/coworklink/coworklink/introrunner"
	"github.com/coworklink/coworklink/matching"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

const startGreeting = "Hey! Tell me a bit about what you do and what you're looking for, and I'll put together a profile for you."

// Server wires the chat webhook and admin routes onto an echo instance.
type Server struct {
	echo *echo.Echo

	store     *store.Store
	transport transport.ChatTransport
	packer    *callback.Packer
	coalescer *chatengine.Coalescer
	intro     *introrunner.Runner
	announcer *announce.Sender
	matching  *matching.Engine

	adminSecret []byte
}

// New builds the HTTP server. adminSecret signs and verifies the bearer
// tokens accepted by the admin routes. matchingEngine is nudged whenever a
// user activates, so a matching loop parked in its §4.G retry sleep picks
// the newly-eligible user up immediately rather than on its next timeout.
func New(
	st *store.Store,
	tr transport.ChatTransport,
	packer *callback.Packer,
	coalescer *chatengine.Coalescer,
	intro *introrunner.Runner,
	announcer *announce.Sender,
	matchingEngine *matching.Engine,
	adminSecret string,
) *Server {
	s := &Server{
		echo:        echo.New(),
		store:       st,
		transport:   tr,
		packer:      packer,
		coalescer:   coalescer,
		intro:       intro,
		announcer:   announcer,
		matching:    matchingEngine,
		adminSecret: []byte(adminSecret),
	}
	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/webhook/telegram", s.handleWebhook)

	admin := s.echo.Group("/admin", s.adminAuth)
	admin.POST("/announcements/:id/send", s.handleSendAnnouncement)

	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("httpapi: graceful shutdown failed", "error", err)
		}
	}()

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read webhook body")
	}

	in, err := s.transport.ParseInbound(body)
	if err != nil {
		slog.Warn("httpapi: failed to parse inbound update", "error", err)
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	switch in.Kind {
	case transport.InboundMessage:
		s.handleInboundMessage(ctx, in)
	case transport.InboundCallback:
		s.handleInboundCallback(ctx, in)
	}
	return c.NoContent(http.StatusOK)
}

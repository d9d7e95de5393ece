// Package server exposes the core over HTTP: JSON reads through the query
// facade, an SSE stream for live events, and a WebSocket bridge onto mux
// pseudo-terminals.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/model"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/store"
	"github.com/cmericli/claude-remote/internal/tmux"
)

// Server is the HTTP transport over the core.
type Server struct {
	addr   string
	facade *query.Facade
	bus    *bus.Bus
	store  *store.Store
	mux    *tmux.Controller

	echo *echo.Echo
}

// New wires the transport.
func New(addr string, facade *query.Facade, b *bus.Bus, s *store.Store, mux *tmux.Controller) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	srv := &Server{addr: addr, facade: facade, bus: b, store: s, mux: mux, echo: e}

	api := e.Group("/api")
	api.GET("/dashboard", srv.handleDashboard)
	api.GET("/sessions", srv.handleSessions)
	api.GET("/sessions/:id", srv.handleSession)
	api.GET("/sessions/:id/conversation", srv.handleConversation)
	api.POST("/sessions/:id/join", srv.handleJoin)
	api.GET("/search", srv.handleSearch)
	api.GET("/analytics/tokens", srv.handleTokenAnalytics)
	api.GET("/analytics/tools", srv.handleToolAnalytics)
	api.POST("/push/subscribe", srv.handlePushSubscribe)
	api.DELETE("/push/subscribe", srv.handlePushUnsubscribe)
	api.POST("/tmux/:name/inject", srv.handleInject)
	api.DELETE("/tmux/:name", srv.handleTerminate)
	api.GET("/events", srv.handleEvents)
	api.GET("/terminal/:name", srv.handleTerminal)

	return srv
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleDashboard(c echo.Context) error {
	dash, err := s.facade.Dashboard()
	if err != nil {
		return s.internalError(c, "dashboard", err)
	}
	return c.JSON(http.StatusOK, dash)
}

func (s *Server) handleSessions(c echo.Context) error {
	page, err := s.facade.Sessions(query.SessionsFilter{
		Status:  c.QueryParam("status"),
		Project: c.QueryParam("project"),
		Limit:   intParam(c, "limit", 0),
		Offset:  intParam(c, "offset", 0),
	})
	if err != nil {
		return s.internalError(c, "sessions", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleSession(c echo.Context) error {
	detail, err := s.facade.Session(c.Param("id"))
	if err != nil {
		return s.internalError(c, "session", err)
	}
	if detail == nil {
		return c.JSON(http.StatusNotFound, errorBody("session not found"))
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleConversation(c echo.Context) error {
	conv, err := s.facade.Conversation(c.Param("id"), intParam(c, "limit", 200), intParam(c, "offset", 0))
	if err != nil {
		return s.internalError(c, "conversation", err)
	}
	if conv == nil {
		return c.JSON(http.StatusNotFound, errorBody("session not found"))
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return c.JSON(http.StatusBadRequest, errorBody("q is required"))
	}

	filter := store.SearchFilter{
		Project: c.QueryParam("project"),
		Limit:   intParam(c, "limit", 0),
	}
	if after := c.QueryParam("after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			filter.After = t
		}
	}
	if before := c.QueryParam("before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.Before = t
		}
	}

	results, err := s.facade.Search(q, filter)
	if err != nil {
		return s.internalError(c, "search", err)
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleTokenAnalytics(c echo.Context) error {
	out, err := s.facade.TokenAnalytics(c.QueryParam("period"), c.QueryParam("group_by"))
	if err != nil {
		return s.internalError(c, "token analytics", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleToolAnalytics(c echo.Context) error {
	out, err := s.facade.ToolAnalytics(c.QueryParam("period"))
	if err != nil {
		return s.internalError(c, "tool analytics", err)
	}
	return c.JSON(http.StatusOK, out)
}

type pushSubscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
	UserAgent string `json:"user_agent"`
}

func (s *Server) handlePushSubscribe(c echo.Context) error {
	var req pushSubscribeRequest
	if err := c.Bind(&req); err != nil || req.Endpoint == "" {
		return c.JSON(http.StatusBadRequest, errorBody("endpoint is required"))
	}
	err := s.store.SavePushSubscription(model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256dh:    req.P256dh,
		Auth:      req.Auth,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return s.internalError(c, "push subscribe", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "subscribed"})
}

func (s *Server) handlePushUnsubscribe(c echo.Context) error {
	var req pushSubscribeRequest
	if err := c.Bind(&req); err != nil || req.Endpoint == "" {
		return c.JSON(http.StatusBadRequest, errorBody("endpoint is required"))
	}
	if err := s.store.DeletePushSubscription(req.Endpoint); err != nil {
		return s.internalError(c, "push unsubscribe", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unsubscribed"})
}

type joinRequest struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s *Server) handleJoin(c echo.Context) error {
	var req joinRequest
	_ = c.Bind(&req)

	result, err := s.mux.Join(c.Param("id"), req.Rows, req.Cols)
	if err != nil {
		if errors.Is(err, tmux.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		return s.internalError(c, "join", err)
	}
	return c.JSON(http.StatusOK, result)
}

type injectRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleInject(c echo.Context) error {
	var req injectRequest
	if err := c.Bind(&req); err != nil || req.Text == "" {
		return c.JSON(http.StatusBadRequest, errorBody("text is required"))
	}
	if err := s.mux.Inject(c.Param("name"), req.Text); err != nil {
		if errors.Is(err, tmux.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		return s.internalError(c, "inject", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleTerminate(c echo.Context) error {
	if err := s.mux.Terminate(c.Param("name")); err != nil {
		if errors.Is(err, tmux.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		return s.internalError(c, "terminate", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "terminated"})
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	log.Printf("server: %s: %v", op, err)
	return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

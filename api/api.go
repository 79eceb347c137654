// Package api exposes the admin HTTP surface of an Empire engine:
// workflow submission and inspection, health and alert reads, queue
// failure listings, aggregate statistics, and a websocket feed of
// lifecycle events.
//
// All routes live under /v1 and speak JSON. Errors are rendered as the
// envelope {"error": "..."} with conventional status codes: 400 for
// malformed input, 404 for unknown entities, 409 for duplicate queue
// attempts.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/engine"
	"github.com/thelittleladyinc/empire-system/stream"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// API serves the admin HTTP surface for one engine instance.
type API struct {
	eng    *engine.Engine
	broker *stream.Broker
	logger *slog.Logger

	// connSeq numbers websocket subscribers within this process.
	connSeq atomic.Int64
}

// Option configures an API.
type Option func(*API)

// WithBroker attaches the stream broker that backs GET /v1/stream.
// Without one the stream endpoint responds 501.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// WithLogger sets the logger for the API.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API around an engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:    eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.HTTPErrorHandler = a.errorHandler
	a.RegisterRoutes(e)
	return e
}

// RegisterRoutes mounts all admin routes under /v1 on the given Echo
// instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")
	a.registerWorkflowRoutes(g)
	a.registerJobRoutes(g)
	a.registerHealthRoutes(g)
	a.registerQueueRoutes(g)
	a.registerStatsRoutes(g)
	a.registerScheduleRoutes(g)
	a.registerStreamRoutes(g)
}

func (a *API) registerWorkflowRoutes(g *echo.Group) {
	g.POST("/workflows", a.createWorkflow)
	g.GET("/workflows", a.listWorkflows)
	g.GET("/workflows/:workflowId", a.getWorkflow)
	g.POST("/workflows/:workflowId/queue", a.queueWorkflow)
}

func (a *API) registerJobRoutes(g *echo.Group) {
	g.GET("/jobs/:jobId", a.getJob)
}

func (a *API) registerHealthRoutes(g *echo.Group) {
	g.GET("/health", a.health)
	g.GET("/alerts", a.listAlerts)
}

func (a *API) registerQueueRoutes(g *echo.Group) {
	g.GET("/queue/failed", a.listFailed)
}

func (a *API) registerStatsRoutes(g *echo.Group) {
	g.GET("/stats", a.stats)
}

func (a *API) registerScheduleRoutes(g *echo.Group) {
	g.GET("/schedule", a.listSchedule)
}

func (a *API) registerStreamRoutes(g *echo.Group) {
	g.GET("/stream", a.streamEvents)
}

// ErrorResponse is the JSON error envelope for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorHandler renders handler errors as the JSON envelope. Unknown
// errors become an opaque 500; their detail goes to the log, not the
// client.
func (a *API) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}

	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("error", err.Error()),
		)
	}

	if jsonErr := c.JSON(code, ErrorResponse{Error: msg}); jsonErr != nil {
		a.logger.Error("write error response", slog.String("error", jsonErr.Error()))
	}
}

// mapStoreError converts empire sentinel errors to HTTP errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, empire.ErrWorkflowNotFound), errors.Is(err, empire.ErrJobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, empire.ErrWorkflowAlreadyQueued):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

// defaultLimit clamps a requested page size into [1, maxPageLimit],
// applying defaultPageLimit when unset.
func defaultLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLimit
	case limit > maxPageLimit:
		return maxPageLimit
	}
	return limit
}

// intQuery parses an integer query parameter. Absent or malformed
// values read as zero.
func intQuery(c echo.Context, name string) int {
	v := c.QueryParam(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Package server serves the search page and its JSON API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/history"
	"github.com/hession/shopsearch/internal/metrics"
	"github.com/hession/shopsearch/internal/search"
	"go.uber.org/zap"
)

// Searcher runs searches and exposes the session state.
type Searcher interface {
	Search(ctx context.Context, text string) (search.Snapshot, error)
	Snapshot() search.Snapshot
}

// Catalog provides the loaded filter catalog.
type Catalog interface {
	Filters() (catalog.AvailableFilters, bool)
	Loaded() bool
}

// History lists recent searches.
type History interface {
	List(ctx context.Context, limit int) ([]*history.Record, error)
}

// Options holds the server settings taken from configuration.
type Options struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server wraps the gin engine with graceful shutdown helpers.
type Server struct {
	opts     Options
	engine   *gin.Engine
	searcher Searcher
	catalog  Catalog
	history  History
	log      *zap.Logger
}

// New constructs the HTTP server with default middleware and routes.
// hist may be nil when history is disabled.
func New(opts Options, searcher Searcher, cat Catalog, hist History, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(log), requestMetrics(), corsMiddleware(opts.CORSOrigins))
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		opts:     opts,
		engine:   engine,
		searcher: searcher,
		catalog:  cat,
		history:  hist,
		log:      log,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", s.opts.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.page)
	s.engine.POST("/search", s.submit)

	api := s.engine.Group("/api")
	api.GET("/filters", s.filters)
	api.POST("/search", s.search)
	api.GET("/session", s.session)
	api.GET("/history", s.recent)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/readyz", func(c *gin.Context) {
		if !s.catalog.Loaded() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func (s *Server) page(c *gin.Context) {
	c.HTML(http.StatusOK, pageTemplate, newPageView(s.searcher.Snapshot()))
}

// submit handles the page form. The outcome is shown by the page it
// redirects to.
func (s *Server) submit(c *gin.Context) {
	if _, err := s.searcher.Search(c.Request.Context(), c.PostForm("query")); err != nil {
		s.log.Debug("form search discarded", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) filters(c *gin.Context) {
	filters, loaded := s.catalog.Filters()
	if !loaded {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": catalog.ErrNotLoaded.Error()})
		return
	}
	c.PureJSON(http.StatusOK, filters)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap, err := s.searcher.Search(c.Request.Context(), req.Query)
	if errors.Is(err, search.ErrSuperseded) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) session(c *gin.Context) {
	c.JSON(http.StatusOK, s.searcher.Snapshot())
}

func (s *Server) recent(c *gin.Context) {
	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	if s.history == nil {
		c.JSON(http.StatusOK, []*history.Record{})
		return
	}
	records, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// Package api exposes the thin HTTP surface over the query service and
// the websocket entry point for the streaming hub.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	appconfig "sentimentflow/config"
	"sentimentflow/internal/cache"
	"sentimentflow/internal/models"
	"sentimentflow/internal/query"
	"sentimentflow/internal/resolution"
	"sentimentflow/internal/stream"
	"sentimentflow/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	cfg          appconfig.ServerConfig
	log          *logger.Log
	query        *query.Service
	cache        *cache.ResolutionCache
	hub          *stream.Hub
	measurements chan<- models.Measurement
	httpServer   *http.Server
}

func NewServer(cfg appconfig.ServerConfig, qs *query.Service, c *cache.ResolutionCache, hub *stream.Hub, measurements chan<- models.Measurement) *Server {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	return &Server{
		cfg:          cfg,
		log:          logger.GetLogger(),
		query:        qs,
		cache:        c,
		hub:          hub,
		measurements: measurements,
	}
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	v1.GET("/timeseries/:ticker", s.handleQuery)
	v1.GET("/timeseries", s.handleBatchQuery)
	v1.POST("/measurements", s.handleMeasurement)
	v1.GET("/cache/stats", s.handleCacheStats)

	engine.GET("/ws", s.handleWebsocket)
	return engine
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.WithComponent("api").WithFields(logger.Fields{"address": s.cfg.Address}).Info("api server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) handleQuery(c *gin.Context) {
	r, err := resolution.Parse(c.DefaultQuery("resolution", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := parseTimeParam(c, "start")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
		return
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	result, err := s.query.Query(c.Request.Context(), query.Request{
		Ticker:     c.Param("ticker"),
		Resolution: r,
		Start:      start,
		End:        end,
		Limit:      limit,
		Cursor:     c.Query("cursor"),
	})
	if err != nil {
		// Backend details stay in the logs, not in the response.
		s.log.WithComponent("api").WithError(err).Error("timeseries query failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBatchQuery(c *gin.Context) {
	rawTickers := strings.TrimSpace(c.Query("tickers"))
	r, err := resolution.Parse(c.DefaultQuery("resolution", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := parseTimeParam(c, "start")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
		return
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
		return
	}

	tickers := []string{}
	if rawTickers != "" {
		for _, t := range strings.Split(rawTickers, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
	}

	results := s.query.QueryBatch(c.Request.Context(), tickers, r, start, end)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleMeasurement(c *gin.Context) {
	var m models.Measurement
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement payload"})
		return
	}
	if err := m.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	select {
	case s.measurements <- m:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion backlog full"})
	}
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) handleWebsocket(c *gin.Context) {
	var resolutions, tickers []string
	if raw := c.Query("resolutions"); raw != "" {
		resolutions = strings.Split(raw, ",")
	}
	if raw := c.Query("tickers"); raw != "" {
		tickers = strings.Split(raw, ",")
	}

	sub, err := models.NewSubscription(uuid.NewString(), resolutions, tickers)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithComponent("api").WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := stream.NewClient(s.hub, conn, sub)
	client.Start()
	s.hub.Register(client)
}

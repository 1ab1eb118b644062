// Package mintapi is the mint-side HTTP surface the pool's
// internal/mintclient polls: a single GET /quotes?status=paid endpoint
// listing quotes the mint has settled. Grounded on internal/api/server.go
// (gin.New() + gin.Recovery(), a route group, an http.Server wrapped in
// Start/Stop), trimmed to the one pool<->mint interface this domain
// needs rather than the teacher's full stats/admin dashboard, which is
// out of scope here.
package mintapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hashpool/hashpool/internal/util"
)

// QuoteRecord is one entry returned by GET /quotes?status=paid, the
// same wire shape internal/mintclient.Quote decodes.
type QuoteRecord struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount"`
	Status string `json:"status"`
}

// QuoteSource lists quotes by status. The mint engine that actually
// tracks quote lifecycle (Cashu NUT-04/NUT-07 bookkeeping) is out of
// scope; this is the seam a real implementation would satisfy.
type QuoteSource interface {
	PaidQuotes(ctx context.Context) ([]QuoteRecord, error)
}

// Server is the mint's quote-listing HTTP server.
type Server struct {
	bind   string
	source QuoteSource
	router *gin.Engine
	server *http.Server
}

// NewServer builds a Server listening on bind, answering queries from
// source.
func NewServer(bind string, source QuoteSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		bind:   bind,
		source: source,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/quotes", s.handleQuotes)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// handleQuotes serves GET /quotes?status=paid. status is the only
// supported filter; anything else is rejected rather than silently
// returning everything, since mintclient only ever asks for "paid".
func (s *Server) handleQuotes(c *gin.Context) {
	status := c.Query("status")
	if status != "paid" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported status filter"})
		return
	}

	quotes, err := s.source.PaidQuotes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list quotes"})
		return
	}
	if quotes == nil {
		quotes = []QuoteRecord{}
	}

	c.JSON(http.StatusOK, quotes)
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.bind,
		Handler: s.router,
	}

	util.Infof("mintapi: listening on %s", s.bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("mintapi: server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

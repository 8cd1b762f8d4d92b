package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yurifrl/finbr/pkg/config"
	"github.com/yurifrl/finbr/pkg/hierarchy"
	"github.com/yurifrl/finbr/pkg/parser"
	"github.com/yurifrl/finbr/pkg/service"
)

// Server exposes parsing, import and classification over HTTP.
type Server struct {
	config    config.ServerConfig
	logger    *log.Logger
	engine    *gin.Engine
	processor *service.Processor
}

func New(cfg config.ServerConfig, logger *log.Logger, processor *service.Processor) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		engine:    gin.New(),
		processor: processor,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	s.engine.Use(s.withLogging(), gin.CustomRecovery(s.recover))

	origins := s.config.AllowedOrigins
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	s.engine.Use(cors.New(corsCfg))

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/v1")
	api.POST("/statements", s.handleStatement)
	api.POST("/invoices", s.handleInvoice)
	api.POST("/classify", s.handleClassify)
	api.GET("/hierarchy/types", s.handleTypes)
	api.GET("/hierarchy/groups", s.handleGroups)
	api.GET("/hierarchy/commitments", s.handleCommitments)
}

type upload struct {
	filename  string
	data      []byte
	companyID string
	persist   bool
}

func (s *Server) readUpload(c *gin.Context) (*upload, bool) {
	if s.config.MaxUploadBytes > 0 {
		if c.Request.ContentLength > s.config.MaxUploadBytes {
			s.respondError(c, http.StatusRequestEntityTooLarge, "file too large", nil)
			return nil, false
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(c, http.StatusRequestEntityTooLarge, "file too large", err)
			return nil, false
		}
		s.respondError(c, http.StatusBadRequest, "file required", err)
		return nil, false
	}
	f, err := header.Open()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "failed to read file", err)
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, "failed to read file", err)
		return nil, false
	}

	persist, _ := strconv.ParseBool(c.DefaultPostForm("persist", "false"))
	return &upload{
		filename:  header.Filename,
		data:      data,
		companyID: c.PostForm("company_id"),
		persist:   persist,
	}, true
}

func (s *Server) handleStatement(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	if up.persist && up.companyID == "" {
		s.respondError(c, http.StatusBadRequest, "company_id required", nil)
		return
	}

	res, err := s.processor.ImportStatement(c.Request.Context(), up.companyID, up.filename, up.data, up.persist)
	if err != nil {
		s.respondParseError(c, "failed to process statement", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleInvoice(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	if up.persist && up.companyID == "" {
		s.respondError(c, http.StatusBadRequest, "company_id required", nil)
		return
	}

	res, err := s.processor.ImportInvoice(c.Request.Context(), up.companyID, up.filename, up.data, up.persist)
	if err != nil {
		s.respondParseError(c, "failed to process invoice", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type classifyRequest struct {
	CompanyID string `json:"company_id" form:"company_id" binding:"required"`
	DryRun    bool   `json:"dry_run" form:"dry_run"`
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBind(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "company_id required", err)
		return
	}

	report, err := s.processor.Classify(c.Request.Context(), req.CompanyID, req.DryRun)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "classification failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) repository(c *gin.Context) (*hierarchy.Repository, bool) {
	companyID := c.Query("company_id")
	if companyID == "" {
		s.respondError(c, http.StatusBadRequest, "company_id required", nil)
		return nil, false
	}
	return s.processor.Hierarchy(companyID), true
}

func (s *Server) handleTypes(c *gin.Context) {
	repo, ok := s.repository(c)
	if !ok {
		return
	}
	types, err := repo.ListTypes(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "failed to list types", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

func (s *Server) handleGroups(c *gin.Context) {
	repo, ok := s.repository(c)
	if !ok {
		return
	}
	groups, err := repo.ListGroups(c.Request.Context(), c.Query("type_id"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "failed to list groups", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) handleCommitments(c *gin.Context) {
	repo, ok := s.repository(c)
	if !ok {
		return
	}
	commitments, err := repo.ListCommitments(c.Request.Context(), c.Query("group_id"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "failed to list commitments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commitments": commitments})
}

// --- helpers ---

// respondParseError reports structural parse failures as 422 with the parser's
// message so the client can show it.
func (s *Server) respondParseError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, parser.ErrInvalidOFX), errors.Is(err, parser.ErrInvalidNFe), errors.Is(err, parser.ErrUnknownFileType):
		s.respondError(c, http.StatusUnprocessableEntity, err.Error(), err)
	default:
		s.respondError(c, http.StatusInternalServerError, message, err)
	}
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", c.Request.Method, "path", c.Request.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", c.Request.Method, "path", c.Request.URL.Path)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"status": "error",
		"error":  message,
	})
}

func (s *Server) recover(c *gin.Context, rec any) {
	s.logger.Error("panic recovered", "panic", rec, "method", c.Request.Method, "path", c.Request.URL.Path)
	s.respondError(c, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
}

func (s *Server) withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP())
	}
}

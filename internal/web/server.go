// Package web serves the Apple Pay JS demo page and the merchant validation endpoint.
package web

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	go_applepay "github.com/stremovskyy/go-applepay"
	"github.com/stremovskyy/go-applepay/consts"
	"github.com/stremovskyy/go-applepay/internal/config"
	"github.com/stremovskyy/go-applepay/log"
)

//go:embed templates/*.html static/*
var assets embed.FS

// ValidatePath is the merchant validation endpoint called by the page script.
const ValidatePath = "/applepay/validate"

// Server is the demo web server
type Server struct {
	client go_applepay.ApplePay
	cfg    config.Config
	logger log.Logger

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new web server
//
// gin's global mode is left to the caller.
func NewServer(client go_applepay.ApplePay, cfg config.Config, logger log.Logger) (*Server, error) {
	if client == nil {
		return nil, errors.New("apple pay client is nil")
	}
	if logger == nil {
		logger = log.NopLogger{}
	}

	index, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	s := &Server{
		client: client,
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	router.Use(gin.CustomRecoveryWithWriter(io.Discard, s.recoverPanic), s.requestLogger())
	router.SetHTMLTemplate(index)
	router.StaticFS("/static", http.FS(static))

	router.GET("/", s.handleIndex)
	router.POST(ValidatePath, s.handleValidate)
	if cfg.Server.DomainAssociationFile != "" {
		router.GET(consts.DomainAssociationPath, s.handleDomainAssociation)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the web server and blocks until it is shut down.
func (s *Server) Run() error {
	var err error
	if s.cfg.Server.TLSEnabled() {
		s.logger.Infof("Listening on https://%s", s.cfg.Server.Addr)
		err = s.httpServer.ListenAndServeTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		s.logger.Infof("Listening on http://%s", s.cfg.Server.Addr)
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

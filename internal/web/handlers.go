package web

import (
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	go_applepay "github.com/stremovskyy/go-applepay"
)

const (
	maxValidateBodySize = 16 << 10 // 16KB

	requestIDHeader = "X-Request-ID"

	errMissingValidationURL = "The request must contain an absolute validation URL."
	errDomainNotAllowed     = "The validation URL is not an allowed Apple Pay domain."
	errInvalidRequest       = "The merchant validation request is invalid."
	errValidationFailed     = "Failed to validate the merchant session."
	errInternal             = "Internal server error."
)

type validateMerchantSessionRequest struct {
	ValidationURL string `json:"validationUrl"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"MerchantID":    s.client.MerchantIdentifier(),
		"StoreName":     s.client.DisplayName(),
		"CountryCode":   s.cfg.ApplePay.CountryCode,
		"CurrencyCode":  s.cfg.ApplePay.CurrencyCode,
		"ValidationURL": ValidatePath,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxValidateBodySize)

	var req validateMerchantSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingValidationURL})
		return
	}
	validationURL := strings.TrimSpace(req.ValidationURL)
	if u, err := url.Parse(validationURL); validationURL == "" || err != nil || !u.IsAbs() {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingValidationURL})
		return
	}

	if !go_applepay.IsAuthorizedValidationURL(validationURL) {
		s.logger.Warnf("Rejected merchant validation URL %q from %s", validationURL, c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": errDomainNotAllowed})
		return
	}

	merchantSession, err := s.client.ValidateMerchant(c.Request.Context(), validationURL, c.Request.Host)
	if go_applepay.IsValidationError(err) {
		s.logger.Warnf("Rejected merchant validation request for host %q from %s: %v", c.Request.Host, c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}
	if err != nil {
		s.logger.Errorf("Failed to validate merchant session with %q for %s: %v", validationURL, c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errValidationFailed})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", merchantSession)
}

func (s *Server) handleDomainAssociation(c *gin.Context) {
	c.File(s.cfg.Server.DomainAssociationFile)
}

// recoverPanic logs a handler panic and answers with a generic error.
func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	s.logger.Errorf("[HTTP] panic serving %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, recovered, debug.Stack())
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errInternal})
}

// requestLogger tags every request with an ID and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		s.logger.Infof("[HTTP] request_id=%s method=%s path=%s status=%d latency=%s ip=%s",
			requestID, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

package web

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/gateway"
	"github.com/bigredeye/cqa/internal/hostname"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/platform/base"
)

const (
	invalidHostnameMessage = "Invalid hostname format."
	projectNotFoundMessage = "Project not found."
	missingHostMessage     = "Missing Host header."
	internalErrorMessage   = "Internal server error."
)

// statusFor translates router errors into a status code and a body that is
// safe to show to clients.
func statusFor(err error) (int, string) {
	switch {
	case hostname.IsInvalidHostname(err):
		return http.StatusBadRequest, invalidHostnameMessage
	case base.IsProjectNotFound(err):
		return http.StatusNotFound, projectNotFoundMessage
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// normalizeHost drops the port and lowercases the Host header.
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// rejectSelf drops requests coming from the gateway itself, they would loop forever.
func (s *Server) rejectSelf(c *gin.Context) {
	if _, found := s.loopback[c.RemoteIP()]; found {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	c.Next()
}

func (s *Server) handleGateway(c *gin.Context) {
	if c.Request.Host == "" {
		c.String(http.StatusBadRequest, missingHostMessage)
		return
	}
	if _, found := s.blocked[c.Request.URL.Path]; found {
		c.Status(http.StatusNotFound)
		return
	}

	host := normalizeHost(c.Request.Host)
	decision, err := s.router.Route(c.Request.Context(), host)
	if err != nil {
		code, message := statusFor(err)
		if code == http.StatusInternalServerError {
			s.logger.Error("Failed to route request", lf.Hostname(host), zap.Error(err))
		}
		c.String(code, message)
		return
	}

	if isEventsRequest(c.Request) && (decision.Action == gateway.ActionCreated || decision.Action == gateway.ActionWait) {
		s.streamEvents(c, host)
		return
	}

	switch decision.Action {
	case gateway.ActionCreated:
		s.renderWaitPage(c, http.StatusCreated, decision)
	case gateway.ActionWait:
		s.renderWaitPage(c, http.StatusOK, decision)
	case gateway.ActionRetry:
		c.Redirect(http.StatusFound, c.Request.URL.RequestURI())
	case gateway.ActionProxy:
		s.router.Touch(c.Request.Context(), decision.Build)
		s.proxy(c, decision)
	default:
		s.logger.Error("Unknown routing decision", zap.Stringer("action", decision.Action))
		c.String(http.StatusInternalServerError, internalErrorMessage)
	}
}

func (s *Server) renderWaitPage(c *gin.Context, code int, decision *gateway.Decision) {
	c.HTML(code, waitTemplate, gin.H{
		"Build": decision.Build.View(),
	})
}

func (s *Server) proxy(c *gin.Context, decision *gateway.Decision) {
	target := &url.URL{Scheme: "http", Host: decision.Address}
	log := s.logger.With(lf.BuildID(decision.Build.ID), zap.String("upstream", target.Host))

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		Transport: s.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("Failed to proxy request", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	proxy.ServeHTTP(c.Writer, c.Request)
}

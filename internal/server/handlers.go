package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/browser"
	"github.com/zoreu/cfresolver/internal/proxy"
)

// Fetcher is the single operation the HTTP layer needs from the core.
type Fetcher interface {
	FetchOnce(ctx context.Context, spec proxy.RequestSpec) (proxy.FetchResult, error)
}

// SessionObserver reports session state for the health endpoint.
type SessionObserver interface {
	State() browser.State
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	fetcher Fetcher
	session SessionObserver
	logger  *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(fetcher Fetcher, session SessionObserver, logger *zap.Logger) *Handlers {
	return &Handlers{
		fetcher: fetcher,
		session: session,
		logger:  logger.Named("handlers"),
	}
}

// proxyRequest is the wire shape of a POST /proxy body. Both `json` and
// `json_data` are accepted for the JSON payload; `json` wins when both
// are present.
type proxyRequest struct {
	URL            string            `json:"url"`
	Params         map[string]string `json:"params"`
	Headers        map[string]string `json:"headers"`
	Data           map[string]string `json:"data"`
	JSON           map[string]any    `json:"json"`
	JSONData       map[string]any    `json:"json_data"`
	FormSelector   string            `json:"form_selector"`
	SubmitSelector string            `json:"submit_selector"`
}

func (r proxyRequest) spec() proxy.RequestSpec {
	payload := r.JSON
	if len(payload) == 0 {
		payload = r.JSONData
	}
	return proxy.RequestSpec{
		URL:            r.URL,
		Params:         r.Params,
		Headers:        r.Headers,
		FormFields:     r.Data,
		JSONPayload:    payload,
		FormSelector:   r.FormSelector,
		SubmitSelector: r.SubmitSelector,
	}
}

// ProxyGet handles GET /proxy?url=...&params={...}&headers={...}.
// The params and headers query values are JSON objects; any other query
// key is folded into params as a convenience.
func (h *Handlers) ProxyGet(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "url query parameter is required"})
		return
	}

	params, err := parseMappingParam(c.Query("params"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "params must be a JSON object"})
		return
	}
	headers, err := parseMappingParam(c.Query("headers"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "headers must be a JSON object"})
		return
	}

	for key, values := range c.Request.URL.Query() {
		if key == "url" || key == "params" || key == "headers" || len(values) == 0 {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		if _, exists := params[key]; !exists {
			params[key] = values[0]
		}
	}

	h.fetch(c, proxy.RequestSpec{URL: rawURL, Params: params, Headers: headers})
}

// ProxyPost handles POST /proxy with a JSON body.
func (h *Handlers) ProxyPost(c *gin.Context) {
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "url is required"})
		return
	}
	h.fetch(c, req.spec())
}

func (h *Handlers) fetch(c *gin.Context, spec proxy.RequestSpec) {
	result, err := h.fetcher.FetchOnce(c.Request.Context(), spec)
	if err != nil {
		h.logger.Error("Fetch failed",
			zap.String("url", spec.URL),
			zap.String("stage", string(proxy.StageOf(err))),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": fmt.Sprintf("Error fetching URL: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health reports liveness and the session lifecycle state.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": h.session.State().String(),
	})
}

func parseMappingParam(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

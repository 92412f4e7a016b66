package httpadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const serviceName = "api"

// ServerMetrics is the subset of the metrics package the router needs.
type ServerMetrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordRejected(service, reason string)
}

type Router struct {
	answerer ports.QuestionAnswerer
	enqueuer ports.RunEnqueuer
	runs     ports.RunReader
	metrics  ServerMetrics
	breakers func() map[string]string

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	maxBodyBytes     int64
	requestTimeout   time.Duration
}

type RouterOption func(*Router)

// WithBreakerStates adds circuit breaker states to /healthz.
func WithBreakerStates(states func() map[string]string) RouterOption {
	return func(rt *Router) {
		rt.breakers = states
	}
}

func WithMetrics(m ServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// NewRouter wires the HTTP API. enqueuer and runs may be nil when the API
// runs without the ingestion queue; those endpoints then answer 503.
func NewRouter(
	cfg config.Config,
	answerer ports.QuestionAnswerer,
	enqueuer ports.RunEnqueuer,
	runs ports.RunReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		answerer:         answerer,
		enqueuer:         enqueuer,
		runs:             runs,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		maxBodyBytes:     int64(cfg.APIMaxUploadBytes),
		requestTimeout:   cfg.APIRequestTimeout,
	}
	if rt.maxBodyBytes <= 0 {
		rt.maxBodyBytes = 50 << 20
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/ask", rt.ask)
	api.HandleFunc("POST /v1/ingestion/runs", rt.createRun)
	api.HandleFunc("GET /v1/ingestion/runs/{id}", rt.getRun)

	var guarded http.Handler = api
	guarded = withBackpressure(guarded, rt.maxInFlight, rt.backpressureWait, rt.rejected("backpressure"))
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst, rt.rejected("rate_limit"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) rejected(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// healthz stays 200 while breakers are open; the API still answers with
// degraded fallbacks.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if rt.breakers != nil {
		resp.Breakers = rt.breakers()
		for _, state := range resp.Breakers {
			if state != "closed" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
	Image    string `json:"image,omitempty"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image must be base64 encoded")
		return
	}

	ctx := r.Context()
	if rt.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.requestTimeout)
		defer cancel()
	}

	answer, err := rt.answerer.Ask(ctx, domain.Question{Text: req.Question, ImageData: image})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) createRun(w http.ResponseWriter, r *http.Request) {
	if rt.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion queue is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	run, err := rt.enqueuer.Enqueue(
		r.Context(),
		r.FormValue("partition"),
		r.FormValue("format"),
		fileHeader.Filename,
		file,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion queue is not configured")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := rt.runs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "data:") {
		idx := strings.Index(raw, ",")
		if idx < 0 {
			return nil, errors.New("malformed data url")
		}
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/flowerr"
	customMW "github.com/cassiomorais/framelink/internal/middleware"
	"github.com/cassiomorais/framelink/internal/observability"
)

var validate = validator.New()

// ServerDeps wires the relay server.
type ServerDeps struct {
	Store   Store
	Claimer Claimer
	// Redis is only used by the readiness probe; nil for memory deployments.
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	Relay   config.RelayConfig
}

// Server is the dispatch relay: the rendezvous point two isolated contexts
// use to exchange channel frames.
type Server struct {
	store   Store
	claimer Claimer
	redis   *redis.Client
	metrics *observability.Metrics
	log     zerolog.Logger
	cfg     config.RelayConfig
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:   deps.Store,
		claimer: deps.Claimer,
		redis:   deps.Redis,
		metrics: deps.Metrics,
		log:     deps.Logger.With().Str("component", "dispatch-relay").Logger(),
		cfg:     deps.Relay,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.LongPollTimeout + 5*time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: s.cfg.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	if s.metrics != nil {
		r.Use(customMW.Metrics(s.metrics))
	}
	r.Use(customMW.RateLimit(600))

	r.Get("/health", s.health)
	r.Get("/health/live", s.liveness)
	r.Get("/health/ready", s.readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/relay/v1/channels/{channelID}", func(r chi.Router) {
		r.Post("/claim", s.claimChannel)
		r.Delete("/claim", s.releaseChannel)
		r.Post("/events", s.appendEvent)
		r.Get("/events", s.pollEvents)
	})

	return r
}

type claimRequest struct {
	Owner string `json:"owner" validate:"required"`
}

func (s *Server) claimChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req claimRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ok, err := s.claimer.Claim(r.Context(), channelID, req.Owner, s.cfg.ResultTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, flowerr.ErrChannelClaimed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
}

func (s *Server) releaseChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, flowerr.NewValidationError("owner", "is required"))
		return
	}

	if err := s.claimer.Release(r.Context(), channelID, owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendEvent(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var frame bus.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeError(w, flowerr.NewValidationError("body", "invalid JSON: "+err.Error()))
		return
	}
	if frame.Event.Kind == "" {
		writeError(w, flowerr.NewValidationError("event.kind", "is required"))
		return
	}
	// The path owns the address. Directional sub-channels carry the bus
	// channel id as a prefix, so the body id must match the path or its base.
	if frame.ChannelID == "" {
		frame.ChannelID = channelID
	} else if frame.ChannelID != channelID && !strings.HasPrefix(channelID, frame.ChannelID+":") {
		writeError(w, flowerr.NewValidationError("channelId", "does not match path"))
		return
	}

	if err := s.store.Append(r.Context(), channelID, frame); err != nil {
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RelayFramesStored.WithLabelValues(string(frame.Event.Kind)).Inc()
	}
	w.WriteHeader(http.StatusAccepted)
}

type pollResponse struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor"`
}

func (s *Server) pollEvents(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	cursor := r.URL.Query().Get("cursor")

	wait := s.cfg.LongPollTimeout
	if raw := r.URL.Query().Get("wait"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 && d < wait {
			wait = d
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	records, err := s.store.Read(ctx, channelID, cursor)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := pollResponse{Records: records, Cursor: cursor}
	if len(records) > 0 {
		resp.Cursor = records[len(records)-1].Cursor
	}
	if resp.Records == nil {
		resp.Records = []Record{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "redis unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{flowerr.ErrChannelClaimed, http.StatusConflict, "channel_claimed"},
	{flowerr.ErrClaimNotHeld, http.StatusConflict, "claim_not_held"},
	{flowerr.ErrChannelNotFound, http.StatusNotFound, "not_found"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var validationErr *flowerr.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return flowerr.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return flowerr.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return flowerr.NewValidationError("body", err.Error())
	}
	return nil
}

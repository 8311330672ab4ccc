package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/fystack/lotto-indexer/pkg/store/summarycache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var errGameNotFound = errors.New("game not found")

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type GameInfo struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	MaxNumber int    `json:"maxNumber"`
	PickSize  int    `json:"pickSize"`
}

type LottoHTTPHandler struct {
	version string
	games   config.Games
	draws   drawlog.Source
	records recordstore.Store
	covers  coverstore.Store
	// cache is optional
	cache summarycache.Cache
	now   func() time.Time
}

func NewLottoHTTPHandler(
	version string,
	games config.Games,
	draws drawlog.Source,
	records recordstore.Store,
	covers coverstore.Store,
	cache summarycache.Cache,
) *LottoHTTPHandler {
	return &LottoHTTPHandler{
		version: version,
		games:   games,
		draws:   draws,
		records: records,
		covers:  covers,
		cache:   cache,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *LottoHTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/games", h.HandleGames)
		r.Get("/lottery-data", h.HandleLotteryData)
		r.Get("/recent-draws", h.HandleRecentDraws)
		r.Get("/frequency", h.HandleFrequency)
		r.Get("/hot-cold", h.HandleHotCold)
		r.Get("/buckets/{game}", h.HandleBuckets)
		r.Get("/cover/{game}", h.HandleCoverSets)
		r.Get("/cover/{game}/{signature}", h.HandleCoverSet)
	})
	r.Get("/dashboard/{game}", h.HandleDashboard)
	return r
}

func (h *LottoHTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: h.now(),
		Version:   h.version,
	})
}

func (h *LottoHTTPHandler) HandleGames(w http.ResponseWriter, r *http.Request) {
	out := make([]GameInfo, 0, len(h.games))
	for _, code := range h.games.Codes() {
		g := h.games[code]
		out = append(out, GameInfo{Code: g.Code, Name: g.Name, MaxNumber: g.MaxNumber, PickSize: g.PickSize})
	}
	writeJSON(w, http.StatusOK, out)
}

// game resolves the game named by the path or the ?game= query. Without
// either, the first configured game is used.
func (h *LottoHTTPHandler) game(r *http.Request) (config.GameConfig, error) {
	code := chi.URLParam(r, "game")
	if code == "" {
		code = r.URL.Query().Get("game")
	}
	if code == "" {
		codes := h.games.Codes()
		if len(codes) == 0 {
			return config.GameConfig{}, errGameNotFound
		}
		code = codes[0]
	}
	g, ok := h.games[code]
	if !ok {
		return config.GameConfig{}, fmt.Errorf("%w: %s", errGameNotFound, code)
	}
	return g, nil
}

func intQuery(r *http.Request, name string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return min(v, maxValue), nil
}

func (h *LottoHTTPHandler) summary(ctx context.Context, g config.GameConfig) (stats.DashboardSummary, error) {
	var s stats.DashboardSummary
	if h.cache != nil {
		found, err := h.cache.Get(ctx, g.Code, &s)
		if err != nil {
			logger.Warn("Dashboard cache read failed", "game", g.Code, "err", err)
		} else if found {
			return s, nil
		}
	}

	draws, err := h.draws.LoadRecentDraws(ctx, g.Code, stats.FrequencyWindow)
	if err != nil {
		return s, fmt.Errorf("load draws: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	total, err := h.draws.Count(ctx, g.Code)
	if err != nil {
		return s, fmt.Errorf("count draws: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	s = stats.Summarize(g.Code, draws, total, g.MaxNumber, g.DrawInterval, h.now())

	if h.cache != nil {
		if err := h.cache.Set(ctx, g.Code, s); err != nil {
			logger.Warn("Dashboard cache write failed", "game", g.Code, "err", err)
		}
	}
	return s, nil
}

func (h *LottoHTTPHandler) HandleLotteryData(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.summary(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *LottoHTTPHandler) HandleRecentDraws(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", stats.RecentDrawsShown, stats.FrequencyWindow)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	draws, err := h.draws.LoadRecentDraws(r.Context(), g.Code, limit)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, stats.RecentDraws(draws, limit))
}

func (h *LottoHTTPHandler) HandleFrequency(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	window, err := intQuery(r, "window", stats.FrequencyWindow, stats.FrequencyWindow)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	draws, err := h.draws.LoadRecentDraws(r.Context(), g.Code, window)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, stats.NumberFrequency(draws, g.MaxNumber))
}

func (h *LottoHTTPHandler) HandleHotCold(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	draws, err := h.draws.LoadRecentDraws(r.Context(), g.Code, stats.AnalysisWindow)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, stats.HotAndCold(draws, g.MaxNumber, stats.HotColdSize))
}

func (h *LottoHTTPHandler) HandleBuckets(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	buckets, err := h.records.ListBuckets(g.Code)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	if buckets == nil {
		buckets = []types.SignatureBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (h *LottoHTTPHandler) HandleCoverSets(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sets, err := h.covers.ListCoverSets(g.Code)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	if sets == nil {
		sets = []types.CoverSet{}
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *LottoHTTPHandler) HandleCoverSet(w http.ResponseWriter, r *http.Request) {
	g, err := h.game(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sig, err := types.ParseSignature(chi.URLParam(r, "signature"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	set, found, err := h.covers.GetCoverSet(g.Code, sig)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err))
		return
	}
	if !found {
		writeError(w, fmt.Errorf("cover set %s: %w", sig.Key(), types.ErrUnknownSignature))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func startHTTPServer(port int, handler *LottoHTTPHandler) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(
			"HTTP server started",
			"port", port,
			"health_endpoint", "/health",
			"dashboard_endpoint", "/api/lottery-data",
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err)
		}
	}()

	return server
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errGameNotFound), errors.Is(err, types.ErrUnknownSignature):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidCombination):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "err", err)
	}
	writeErrorJSON(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}

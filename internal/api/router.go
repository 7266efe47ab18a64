package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/loflimit/internal/api/handlers"
	"github.com/wonny/loflimit/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	limitsHandler *handlers.LimitsHandler,
	pipelineHandler *handlers.PipelineHandler,
	stream *handlers.Stream,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Fund timeline endpoints
	api.HandleFunc("/funds", limitsHandler.ListFunds).Methods("GET")
	api.HandleFunc("/funds/{ticker}/intervals", limitsHandler.GetIntervals).Methods("GET")
	api.HandleFunc("/funds/{ticker}/limits", limitsHandler.GetDailyLimits).Methods("GET")
	api.HandleFunc("/funds/{ticker}/audit", limitsHandler.GetAuditLog).Methods("GET")

	// Pipeline endpoints
	api.HandleFunc("/pipeline/rebuild", pipelineHandler.Rebuild).Methods("POST")
	api.HandleFunc("/pipeline/stream", stream.Serve).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "loflimit-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// internal/router/router.go
package router

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"recharge-service/internal/handler"
	"recharge-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const AdminTokenHeader = "X-Admin-Token"

func SetupRoutes(
	orderHandler *handler.OrderHandler,
	adminHandler *handler.AdminHandler,
	adminToken string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Post("/vip", orderHandler.CreateVIPOrder)
			r.Get("/{order_id}", orderHandler.GetOrder)
			r.Post("/{order_id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Get("/active-order", orderHandler.GetActiveOrder)
			r.Get("/balance", orderHandler.GetBalance)
			r.Get("/balance/logs", orderHandler.GetBalanceLogs)
			r.Get("/vip", orderHandler.GetVIP)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(adminToken, logger))

			r.Route("/rates", func(r chi.Router) {
				r.Get("/", adminHandler.GetRates)
				r.Post("/feed", adminHandler.SetFeed)
				r.Post("/refresh", adminHandler.RefreshRates)
				r.Put("/{currency}", adminHandler.SetRate)
				r.Delete("/{currency}", adminHandler.ClearRate)
			})

			r.Get("/stats", adminHandler.GetStats)

			r.Get("/settings", adminHandler.GetSettings)
			r.Get("/settings/{key}", adminHandler.GetSetting)
			r.Put("/settings/{key}", adminHandler.PutSetting)

			r.Post("/users/{user_id}/balance", adminHandler.AdjustBalance)
			r.Post("/orders/{order_id}/complete", adminHandler.CompleteOrder)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

// AdminAuth rejects requests without the configured admin token. An empty
// token disables the admin API entirely.
func AdminAuth(token string, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.Warn("admin request rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"message": "unauthorized",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

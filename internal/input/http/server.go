package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	handler *Handler
	server  *http.Server
	log     *zap.Logger
}

func NewServer(addr string, handler *Handler, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(handler, gatherer, log),
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  300 * time.Second,
		},
		log: log,
	}
}

func NewRouter(handler *Handler, gatherer prometheus.Gatherer, log *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestLogger(log))
	router.Use(corsMiddleware)

	// HTML
	router.HandleFunc("/login-page", handler.LoginPage).Methods("GET")
	router.HandleFunc("/login-user/", handler.LoginUser).Methods("POST", "OPTIONS")

	// API маршруты
	api := router.PathPrefix("/photo").Subrouter()
	api.HandleFunc("/get-all-photos/", handler.ListPhotos).Methods("GET", "OPTIONS")
	api.HandleFunc("/upload-photos/", handler.UploadPhotos).Methods("POST", "OPTIONS")
	api.HandleFunc("/delete-photo/{photo_id}", handler.DeletePhoto).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/fix-photos-orientation/", handler.FixPhotosOrientation).Methods("POST", "OPTIONS")

	router.HandleFunc("/health", handler.Health).Methods("GET")
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an id, reusing the one sent by the
// client when present.
func requestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Info("request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

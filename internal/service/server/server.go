package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/utils/log"
)

const shutdownTimeout = 5 * time.Second

type (
	// HttpServer is the key directory: it publishes prekey bundles.
	HttpServer struct {
		addr     string
		accounts *account.Service
		pinger   func(ctx context.Context) error
	}
)

// NewHttpServer serves bundles from accounts. pinger backs /healthz and may be nil.
func NewHttpServer(addr string, accounts *account.Service, pinger func(ctx context.Context) error) *HttpServer {
	return &HttpServer{
		addr:     addr,
		accounts: accounts,
		pinger:   pinger,
	}
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/keys/{name}", s.GetPreKeyBundle()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.Health()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("key directory listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HttpServer) GetPreKeyBundle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vars := mux.Vars(r)
		name := vars["name"]
		log.Info("GetPreKeyBundle", zap.String("name", name))

		bundle, err := s.accounts.Bundle(ctx, name)
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			http.Error(w, "user does not exist", http.StatusNotFound)
			return
		}

		if err != nil {
			log.Error("get prekey bundle failed", zap.String("name", name), zap.Error(err))
			http.Error(w, "get prekey bundle failed", http.StatusInternalServerError)
			return
		}

		data, err := json.Marshal(bundle)
		if err != nil {
			log.Error("get prekey bundle failed", zap.Error(err))
			http.Error(w, "get prekey bundle failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *HttpServer) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pinger != nil {
			if err := s.pinger(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

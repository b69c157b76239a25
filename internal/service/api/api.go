package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/service/feed"
	"e2e_messaging/internal/service/messaging"
	"e2e_messaging/internal/utils/log"
)

const shutdownTimeout = 5 * time.Second

type (
	// LocalServer exposes one user's messaging service to a UI on the same
	// machine: commands over HTTP and events over the /events websocket, both
	// served by the same process so every command's events reach subscribers.
	LocalServer struct {
		addr      string
		messaging *messaging.Service
		feed      *feed.Feed
	}

	readRequest struct {
		MessageID string `json:"message_id"`
	}

	createConversationRequest struct {
		ParticipantIDs []string `json:"participant_ids"`
	}

	errorResponse struct {
		Kind  apperrors.Kind `json:"kind"`
		Error string         `json:"error"`
	}
)

func NewLocalServer(addr string, svc *messaging.Service) *LocalServer {
	return &LocalServer{
		addr:      addr,
		messaging: svc,
		feed:      feed.NewFeed(svc, 0),
	}
}

func (s *LocalServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/events", s.feed.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/messages", s.SendMessage()).Methods(http.MethodPost)
	r.HandleFunc("/messages/decrypt", s.DecryptMessage()).Methods(http.MethodPost)
	r.HandleFunc("/conversations", s.GetConversations()).Methods(http.MethodGet)
	r.HandleFunc("/conversations", s.CreateConversation()).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}", s.GetConversation()).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", s.GetMessages()).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/settings", s.UpdateSettings()).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/read", s.MarkAsRead()).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{peer}", s.ResetSession()).Methods(http.MethodDelete)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *LocalServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("local client api listening", zap.String("addr", s.addr))
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

func (s *LocalServer) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg model.DecryptedMessage
		if !decode(w, r, &msg) {
			return
		}
		em, err := s.messaging.SendMessage(r.Context(), msg)
		if err != nil {
			writeError(w, "send message", err)
			return
		}
		writeJSON(w, http.StatusCreated, em)
	}
}

func (s *LocalServer) DecryptMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var em model.EncryptedMessage
		if !decode(w, r, &em) {
			return
		}
		dm, err := s.messaging.DecryptMessage(r.Context(), &em)
		if err != nil {
			writeError(w, "decrypt message", err)
			return
		}
		writeJSON(w, http.StatusOK, dm)
	}
}

func (s *LocalServer) GetConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.messaging.GetConversations())
	}
}

// CreateConversation adds the local user to the participants when missing.
func (s *LocalServer) CreateConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createConversationRequest
		if !decode(w, r, &req) {
			return
		}
		ids := append([]string{s.messaging.LocalID()}, req.ParticipantIDs...)
		conv, err := s.messaging.CreateConversation(r.Context(), ids)
		if err != nil {
			writeError(w, "create conversation", err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func (s *LocalServer) GetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := s.messaging.GetConversation(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, "get conversation", err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func (s *LocalServer) GetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, "get messages", apperrors.InvalidArg("limit must be a number"))
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, s.messaging.GetMessages(mux.Vars(r)["id"], limit))
	}
}

func (s *LocalServer) UpdateSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch model.SettingsPatch
		if !decode(w, r, &patch) {
			return
		}
		conv, err := s.messaging.UpdateConversationSettings(r.Context(), mux.Vars(r)["id"], patch)
		if err != nil {
			writeError(w, "update settings", err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func (s *LocalServer) MarkAsRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req readRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.messaging.MarkAsRead(mux.Vars(r)["id"], req.MessageID); err != nil {
			writeError(w, "mark as read", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *LocalServer) ResetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.messaging.ResetSession(r.Context(), mux.Vars(r)["peer"]); err != nil {
			writeError(w, "reset session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "decode request", apperrors.InvalidArg("malformed request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response failed", zap.Error(err))
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperrors.KindOf(err)
	status := statusOf(kind)
	if status == http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Debug(op+" rejected", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Kind: kind, Error: err.Error()})
}

func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindSession, apperrors.KindCrypto:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const sinkCapacity = 50

type storedMail struct {
	mailMessage
	ReceivedAt time.Time `json:"received_at"`
}

// Sink is a development stand-in for the mail API. It accepts mails on
// POST /send, logs them and keeps the most recent ones for inspection.
type Sink struct {
	mu     sync.Mutex
	mails  []storedMail
	now    func() time.Time
	logger *slog.Logger
}

func NewSink(logger *slog.Logger) *Sink {
	return &Sink{now: time.Now, logger: logger}
}

func (s *Sink) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg mailMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(msg.To, "@") || msg.Subject == "" {
		s.writeError(w, http.StatusBadRequest, "to and subject are required")
		return
	}

	s.mu.Lock()
	s.mails = append(s.mails, storedMail{mailMessage: msg, ReceivedAt: s.now().UTC()})
	if len(s.mails) > sinkCapacity {
		s.mails = s.mails[len(s.mails)-sinkCapacity:]
	}
	s.mu.Unlock()

	s.logger.InfoContext(r.Context(), "mail accepted", "to", msg.To, "subject", msg.Subject)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleList returns the retained mails, newest last.
func (s *Sink) HandleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	mails := make([]storedMail, len(s.mails))
	copy(mails, s.mails)
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, mails)
}

func (s *Sink) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Sink) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

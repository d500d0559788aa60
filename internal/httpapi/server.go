package httpapi

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

// Server holds the shared state behind the HTTP surface: the Session
// Manager and an in-memory table of pending exports awaiting download.
// Grounded on the teacher's internal/server.Server — one struct, one
// mutex, one handler method per route — generalized from a flat log-entry
// store to the session/step/archive resources this spec's routes expose.
type Server struct {
	manager *session.Manager
	log     zerolog.Logger

	mu      sync.Mutex
	exports map[string][]byte // filename -> archive bytes, spec §6 export/download split
}

// New constructs a Server bound to a Session Manager.
func New(manager *session.Manager, log zerolog.Logger) *Server {
	return &Server{
		manager: manager,
		log:     log.With().Str("component", "http").Logger(),
		exports: make(map[string][]byte),
	}
}

// Routes registers every handler on mux (spec §6's route table).
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.auth(s.handleGetSession))
	mux.HandleFunc("POST /api/sessions/{id}/start", s.auth(s.handleStartSession))
	mux.HandleFunc("POST /api/sessions/{id}/end", s.auth(s.handleEndSession))
	mux.HandleFunc("GET /api/sessions/{id}/steps", s.auth(s.handleListSteps))
	mux.HandleFunc("PATCH /api/sessions/{id}/steps/{stepId}", s.auth(s.handleUpdateStep))
	mux.HandleFunc("DELETE /api/sessions/{id}/steps/{stepId}", s.auth(s.handleDeleteStep))
	mux.HandleFunc("POST /api/export/{id}", s.auth(s.handleExport))
	mux.HandleFunc("GET /api/export/{id}/download/{filename}", s.auth(s.handleDownload))
	mux.HandleFunc("POST /api/import/{id}", s.auth(s.handleImport))
	mux.HandleFunc("POST /api/import/{id}/preview", s.auth(s.handleImportPreview))
}

// auth wraps a handler with the bearer-token check spec §6 requires on
// every authenticated endpoint ("Authorization: Bearer <token> matching
// the session's token (constant-time compare)").
func (s *Server) auth(next func(w http.ResponseWriter, r *http.Request, sess *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.manager.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "unknown session")
			return
		}

		token := bearerToken(r)
		if token == "" || !crypto.ConstantTimeEqual(token, sess.Token) {
			writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "missing or invalid bearer token")
			return
		}

		next(w, r, sess)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

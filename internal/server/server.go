// internal/server/server.go
//
// Package server is the relay: a thin HTTP and WebSocket front for a
// logstore.Store plus identity and lobby color slots. It never folds the
// log and never judges legality; every client does that for itself.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/internal/auth"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// maxRecordBytes bounds an append body.
const maxRecordBytes = 64 << 10

// Server routes relay requests.
type Server struct {
	store  logstore.Store
	slots  lobby.Slots
	issuer *auth.Issuer
	log    *logrus.Entry

	// PingInterval is how often idle log streams are pinged.
	PingInterval time.Duration
	// AllowOrigins lists browser origins allowed to open log streams. An
	// empty list allows any origin.
	AllowOrigins []string
	// OnGameCreated runs for every id handed out by POST /v1/games.
	OnGameCreated func(gameID uuid.UUID)
}

// New returns a relay over store and slots.
func New(store logstore.Store, slots lobby.Slots, issuer *auth.Issuer, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		store:        store,
		slots:        slots,
		issuer:       issuer,
		log:          log,
		PingInterval: 15 * time.Second,
	}
}

// Handler returns the relay's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/identity", s.handleIdentity)
	mux.HandleFunc("POST /v1/games", s.handleCreateGame)
	mux.HandleFunc("POST /v1/games/{id}/log", s.handleAppend)
	mux.HandleFunc("GET /v1/games/{id}/log", s.handleSubscribe)
	mux.HandleFunc("GET /v1/rooms/{id}/colors", s.handleColors)
	mux.HandleFunc("PUT /v1/rooms/{id}/colors/{color}", s.handleClaim)
	mux.HandleFunc("DELETE /v1/rooms/{id}/colors", s.handleRelease)
	mux.HandleFunc("GET /v1/rooms/{id}/roster", s.handleRoster)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Request")
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, logstore.ErrInvalidRecord),
		errors.Is(err, lobby.ErrInvalidColor),
		errors.Is(err, lobby.ErrInvalidSeat),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, errNoToken):
		status = http.StatusUnauthorized
	case errors.Is(err, lobby.ErrColorTaken):
		status = http.StatusConflict
	case errors.Is(err, logstore.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

var (
	errNoToken    = errors.New("missing bearer token")
	errBadRequest = errors.New("bad request")
)

func (s *Server) identify(r *http.Request) (auth.Identity, error) {
	tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return auth.Identity{}, errNoToken
	}
	return s.issuer.Verify(tok)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, errors.Join(errBadRequest, err)
	}
	return id, nil
}

// IdentityRequest asks for a token.
type IdentityRequest struct {
	Name string `json:"name"`
}

// IdentityResponse carries a fresh token.
type IdentityResponse struct {
	Token string `json:"token"`
	auth.Identity
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		s.writeError(w, errors.Join(errBadRequest, err))
		return
	}
	tok, id, err := s.issuer.Issue(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithField("user", id.UserID).Info("Identity issued")
	writeJSON(w, http.StatusCreated, IdentityResponse{Token: tok, Identity: id})
}

// CreateGameResponse names a new, empty game log.
type CreateGameResponse struct {
	GameID uuid.UUID `json:"gameId"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, _ *http.Request) {
	// Logs are created by their first append; the id is all a game needs.
	id := uuid.New()
	if s.OnGameCreated != nil {
		s.OnGameCreated(id)
	}
	s.log.WithField("game", id).Info("Game created")
	writeJSON(w, http.StatusCreated, CreateGameResponse{GameID: id})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	gameID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var rec logstore.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes)).Decode(&rec); err != nil {
		s.writeError(w, errors.Join(logstore.ErrInvalidRecord, err))
		return
	}
	if rec.SubmissionID == uuid.Nil {
		s.writeError(w, errors.Join(logstore.ErrInvalidRecord, errors.New("submission id required")))
		return
	}
	// The token, not the body, names the submitter.
	rec.Submitter = id.UserID

	e, err := s.store.Append(r.Context(), gameID, rec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithFields(logrus.Fields{"game": gameID, "seq": e.Seq, "ts": e.Timestamp, "user": id.UserID}).Debug("Appended")
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	room, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.slots.Colors(r.Context(), room)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	room, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	color := engine.Color(r.PathValue("color"))
	if err := s.slots.Claim(r.Context(), room, color, lobby.Seat{ID: id.UserID, Name: id.Name}); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithFields(logrus.Fields{"room": room, "user": id.UserID, "color": color}).Info("Color claimed")
	s.handleColors(w, r)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	room, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.slots.Release(r.Context(), room, id.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RosterResponse is a room's seated players and the START action that
// would begin their game.
type RosterResponse struct {
	Players []engine.PlayerConfig `json:"players"`
	Start   json.RawMessage       `json:"start"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	room, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.slots.Colors(r.Context(), room)
	if err != nil {
		s.writeError(w, err)
		return
	}
	start, err := engine.MarshalAction(a.StartAction())
	if err != nil {
		s.writeError(w, err)
		return
	}
	players := a.Roster()
	if players == nil {
		players = []engine.PlayerConfig{}
	}
	writeJSON(w, http.StatusOK, RosterResponse{Players: players, Start: start})
}

// parseFrom reads the from query parameter, defaulting to 1.
func parseFrom(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("from")
	if v == "" {
		return 1, nil
	}
	from, err := strconv.ParseInt(v, 10, 64)
	if err != nil || from < 1 {
		return 0, errors.Join(errBadRequest, errors.New("from must be a positive integer"))
	}
	return from, nil
}

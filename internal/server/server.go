// Package server exposes the library and the simulation control surface
// over HTTP. JSON in, JSON out; errors use a single envelope with the kind
// from the error taxonomy so clients can rebuild typed errors.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/filter"
	"github.com/dyluth/stacks/internal/ledger"
	"github.com/dyluth/stacks/internal/liberr"
	"github.com/dyluth/stacks/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server routes library and simulation requests. Construct with New, then
// serve its Handler.
type Server struct {
	store  *catalog.Store
	ledger *ledger.Ledger
	orch   *orchestrator.Orchestrator
	log    *logrus.Entry
	sse    *sseHub
}

// New wires the HTTP surface over the given storage and orchestrator.
// The orchestrator may be nil, in which case the simulation endpoints
// report 404s.
func New(store *catalog.Store, ldg *ledger.Ledger, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		store:  store,
		ledger: ldg,
		orch:   orch,
		log:    logrus.WithField("component", "server"),
		sse:    newSSEHub(),
	}
	if orch != nil {
		orch.AddCallback(s.sse.broadcast)
	}
	return s
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/books", s.handleListBooks)
	mux.HandleFunc("POST /api/books", s.handleCreateBook)
	mux.HandleFunc("GET /api/books/{id}", s.handleGetBook)
	mux.HandleFunc("PATCH /api/books/{id}", s.handleUpdateBook)
	mux.HandleFunc("DELETE /api/books/{id}", s.handleDeleteBook)

	mux.HandleFunc("GET /api/members", s.handleListMembers)
	mux.HandleFunc("POST /api/members", s.handleCreateMember)
	mux.HandleFunc("GET /api/members/{id}", s.handleGetMember)
	mux.HandleFunc("DELETE /api/members/{id}", s.handleDeleteMember)
	mux.HandleFunc("GET /api/members/{id}/loans", s.handleMemberLoans)

	mux.HandleFunc("GET /api/loans", s.handleListLoans)
	mux.HandleFunc("POST /api/loans", s.handleCreateLoan)
	mux.HandleFunc("GET /api/loans/{id}", s.handleGetLoan)
	mux.HandleFunc("POST /api/loans/{id}/return", s.handleReturnLoan)

	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("POST /api/simulation/start", s.handleSimStart)
	mux.HandleFunc("POST /api/simulation/stop", s.handleSimStop)
	mux.HandleFunc("GET /api/simulation/status", s.handleSimStatus)
	mux.HandleFunc("GET /api/simulation/events", s.handleSimEvents)
	mux.HandleFunc("GET /api/simulation/scenarios", s.handleSimScenarios)
	mux.HandleFunc("GET /api/simulation/stream", s.handleSimStream)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- books ----

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.BookFilter{
		Query:         q.Get("q"),
		AvailableOnly: q.Get("available") == "true",
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	books, err := s.store.ListBooks(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		ISBN   string `json:"isbn"`
	}
	if !s.decode(w, r.Body, &req) {
		return
	}

	b, err := s.store.CreateBook(r.Context(), req.Title, req.Author, req.ISBN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	b, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var upd catalog.BookUpdate
	if !s.decode(w, r.Body, &upd) {
		return
	}

	b, err := s.store.UpdateBook(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteBook(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- members ----

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		m, err := s.store.FindMemberByEmail(r.Context(), email)
		if liberr.IsNotFound(err) {
			s.writeJSON(w, http.StatusOK, []catalog.Member{})
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, []catalog.Member{m})
		return
	}

	members, err := s.store.ListMembers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if !s.decode(w, r.Body, &req) {
		return
	}

	m, err := s.store.CreateMember(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	m, err := s.store.GetMember(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteMember(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMemberLoans(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	loans, err := s.ledger.MemberLoans(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

// ---- loans ----

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	loans, err := s.ledger.ListLoans(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID   int64 `json:"book_id"`
		MemberID int64 `json:"member_id"`
	}
	if !s.decode(w, r.Body, &req) {
		return
	}

	ln, err := s.ledger.CreateLoan(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ln)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ln, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ln)
}

func (s *Server) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ln, err := s.ledger.CloseLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ln)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// ---- simulation ----

func (s *Server) handleSimStart(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		s.writeError(w, liberr.NotFound("simulation is not enabled on this server"))
		return
	}

	var req struct {
		Scenario string `json:"scenario"`
	}
	if !s.decode(w, r.Body, &req) {
		return
	}
	if req.Scenario == "" {
		req.Scenario = orchestrator.ScenarioBusyDay
	}

	if err := s.orch.Start(req.Scenario); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.orch.Status())
}

func (s *Server) handleSimStop(w http.ResponseWriter, _ *http.Request) {
	if s.orch == nil {
		s.writeError(w, liberr.NotFound("simulation is not enabled on this server"))
		return
	}
	s.orch.Stop()
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleSimStatus(w http.ResponseWriter, _ *http.Request) {
	if s.orch == nil {
		s.writeError(w, liberr.NotFound("simulation is not enabled on this server"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleSimEvents(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		s.writeError(w, liberr.NotFound("simulation is not enabled on this server"))
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	crit := filter.Criteria{
		TypeGlob: q.Get("type"),
		Agent:    q.Get("agent"),
	}
	crit.SinceTimestampMs, _ = strconv.ParseInt(q.Get("since_ms"), 10, 64)
	crit.UntilTimestampMs, _ = strconv.ParseInt(q.Get("until_ms"), 10, 64)

	events := crit.Apply(s.orch.Events(0))
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSimScenarios(w http.ResponseWriter, _ *http.Request) {
	type scenarioInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []scenarioInfo
	for _, sc := range orchestrator.Scenarios() {
		out = append(out, scenarioInfo{Name: sc.Name, Description: sc.Description})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ---- helpers ----

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, liberr.NotFound("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

// errorBody is the wire shape of the error envelope. ReturnedAtMs rides
// along on already-returned conflicts so clients can report when the loan
// was originally closed.
type errorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	ReturnedAtMs *int64 `json:"returned_at_ms,omitempty"`
}

func (s *Server) decode(w http.ResponseWriter, body io.Reader, out any) bool {
	if err := json.NewDecoder(body).Decode(out); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]errorBody{
			"error": {
				Kind:    string(liberr.KindUnknown),
				Message: "invalid request body: " + err.Error(),
			},
		})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

// writeError renders the error envelope with the HTTP status for its kind.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := liberr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case liberr.KindNotFound:
		status = http.StatusNotFound
	case liberr.KindConflict, liberr.KindBlocked:
		status = http.StatusConflict
	case liberr.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	body := errorBody{Kind: string(kind), Message: err.Error()}
	var le *liberr.Error
	if errors.As(err, &le) {
		body.ReturnedAtMs = le.ReturnedAtMs
	}
	s.writeJSON(w, status, map[string]errorBody{"error": body})
}

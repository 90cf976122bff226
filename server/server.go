// Package server exposes the lottery service over JSON HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/prize-wheel-engine/auth"
	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/lottery"
	"github.com/Ashenafi-pixel/prize-wheel-engine/metrics"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc        *lottery.Service
	verifier   *auth.Verifier
	limiter    *rateLimiter
	audit      *events.FileSink
	reconciler *lottery.Reconciler
}

type Option func(*Server)

// WithAudit serves GET /pools/{id}/events from the audit file.
func WithAudit(fs *events.FileSink) Option { return func(s *Server) { s.audit = fs } }

// WithReconciler serves GET /reconcile with the latest drift report.
func WithReconciler(r *lottery.Reconciler) Option { return func(s *Server) { s.reconciler = r } }

func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(rps, burst) }
}

func New(svc *lottery.Service, verifier *auth.Verifier, opts ...Option) *Server {
	s := &Server{svc: svc, verifier: verifier, limiter: newRateLimiter(5, 10)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router. Reads are public; every write needs a bearer
// token and is rate limited per identity.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/pools", s.listPools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}", s.getPool).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/analysis", s.getAnalysis).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/tickets", s.listTickets).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/tickets/{seq:[0-9]+}", s.getTicket).Methods(http.MethodGet)
	if s.audit != nil {
		r.HandleFunc("/pools/{id}/events", s.listEvents).Methods(http.MethodGet)
	}
	if s.reconciler != nil {
		r.HandleFunc("/reconcile", s.getReconcile).Methods(http.MethodGet)
	}

	authed := s.verifier.Middleware(func(rw http.ResponseWriter, err error) {
		writeError(rw, http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
	})
	write := func(h http.HandlerFunc) http.Handler { return authed(s.limiter.Handler(h)) }
	r.Handle("/pools", write(s.createPool)).Methods(http.MethodPost)
	r.Handle("/pools/{id}/tickets", write(s.buyTicket)).Methods(http.MethodPost)
	r.Handle("/pools/{id}/tickets/{seq:[0-9]+}/spin", write(s.spin)).Methods(http.MethodPost)
	r.Handle("/pools/{id}/tickets/{seq:[0-9]+}/claim", write(s.claim)).Methods(http.MethodPost)
	r.Handle("/pools/{id}/withdrawals", write(s.withdraw)).Methods(http.MethodPost)

	return cors(requestLogger(r))
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", "INVALID_BODY")
		return false
	}
	return true
}

func identity(r *http.Request) pool.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

func sequence(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket sequence", "INVALID_REQUEST")
		return 0, false
	}
	return seq, true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "prize-wheel"})
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}
	p, err := s.svc.CreatePool(r.Context(), identity(r), req.params())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPoolResponse(p))
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.svc.Pools(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]poolResponse, len(pools))
	for i, p := range pools {
		out[i] = newPoolResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Pool(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolResponse(p))
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Analysis(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) buyTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.BuyTicket(r.Context(), mux.Vars(r)["id"], identity(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTicketResponse(t))
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	owner := pool.Identity(r.URL.Query().Get("owner"))
	ts, err := s.svc.Tickets(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]ticketResponse, len(ts))
	for i, t := range ts {
		out[i] = newTicketResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	seq, ok := sequence(w, r)
	if !ok {
		return
	}
	t, err := s.svc.Ticket(r.Context(), mux.Vars(r)["id"], seq)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketResponse(t))
}

func (s *Server) spin(w http.ResponseWriter, r *http.Request) {
	seq, ok := sequence(w, r)
	if !ok {
		return
	}
	t, err := s.svc.Spin(r.Context(), mux.Vars(r)["id"], seq, identity(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketResponse(t))
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	seq, ok := sequence(w, r)
	if !ok {
		return
	}
	amount, t, err := s.svc.Claim(r.Context(), mux.Vars(r)["id"], seq, identity(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Amount: amount, Ticket: newTicketResponse(t)})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.Withdraw(r.Context(), mux.Vars(r)["id"], identity(r), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolResponse(p))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.svc.Pool(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	recs, err := s.audit.ByPool(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getReconcile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.Last())
}

package dfuserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/tomb.v2"

	"github.com/bft-labs/bankswap/internal/domain"
	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/state"
)

// DefaultMaxChunk bounds the body of a firmware PUT.
const DefaultMaxChunk = 64 << 10

var shutdownTimeout = time.Second

// Target is the device the server drives.
type Target interface {
	State(ctx context.Context) (state.State, error)
	LastReport(ctx context.Context) (domain.Report, error)
	WriteFirmware(ctx context.Context, offset int, data []byte) error
	Commit(ctx context.Context, length int) error
	Confirm(ctx context.Context) error
	RequestDFU(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMaxChunk bounds the size of a single firmware chunk.
func WithMaxChunk(n int) Option {
	return func(s *Server) { s.maxChunk = n }
}

// Server serves the DFU API for one Target.
type Server struct {
	target   Target
	logger   log.Logger
	maxChunk int
	router   *mux.Router

	serve    *http.Server
	listener net.Listener
	tomb     tomb.Tomb
}

// New returns a server for target. Call Start to listen, or mount Handler.
func New(target Target, opts ...Option) *Server {
	s := &Server{
		target:   target,
		logger:   log.NewNoopLogger(),
		maxChunk: DefaultMaxChunk,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.addRoutes()
	return s
}

func (s *Server) addRoutes() {
	s.router = mux.NewRouter()
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/state", s.getState).Methods(http.MethodGet)
	v1.HandleFunc("/report", s.getReport).Methods(http.MethodGet)
	v1.HandleFunc("/firmware/commit", s.commit).Methods(http.MethodPost)
	v1.HandleFunc("/firmware/{offset:[0-9]+}", s.putFirmware).Methods(http.MethodPut)
	v1.HandleFunc("/booted", s.booted).Methods(http.MethodPost)
	v1.HandleFunc("/dfu", s.dfu).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusNotFound, "not-found", errors.New("invalid API endpoint requested"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusMethodNotAllowed, "method-not-allowed", fmt.Errorf("method %s not allowed", r.Method))
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = l
	s.serve = &http.Server{Handler: s.logRequests(s.router)}

	s.tomb.Go(func() error {
		if err := s.serve.Serve(l); err != http.ErrServerClosed && s.tomb.Err() == tomb.ErrStillAlive {
			return err
		}
		return nil
	})
	s.logger.Info("dfu server listening", log.String("addr", l.Addr().String()))
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and waits for in-flight requests.
func (s *Server) Stop() error {
	if s.serve == nil {
		return nil
	}
	s.tomb.Kill(nil)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	s.tomb.Kill(s.serve.Shutdown(ctx))
	cancel()
	return s.tomb.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", log.String("path", r.URL.Path), log.Err(err))
	} else {
		s.logger.Warn("request rejected", log.String("path", r.URL.Path), log.Err(err))
	}
	errorResponse(w, status, kind, err)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	st, err := s.target.State(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	syncResponse(w, StateResult{State: st})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.target.LastReport(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	syncResponse(w, report)
}

func (s *Server) putFirmware(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(mux.Vars(r)["offset"])
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "bad-offset", fmt.Errorf("invalid offset: %v", err))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.maxChunk)))
	if err != nil {
		errorResponse(w, http.StatusRequestEntityTooLarge, "too-large", fmt.Errorf("chunk exceeds %d bytes", s.maxChunk))
		return
	}
	if len(data) == 0 {
		errorResponse(w, http.StatusBadRequest, "empty", errors.New("empty chunk"))
		return
	}
	if err := s.target.WriteFirmware(r.Context(), offset, data); err != nil {
		s.fail(w, r, err)
		return
	}
	syncResponse(w, map[string]int{"offset": offset, "written": len(data)})
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "bad-request", fmt.Errorf("cannot decode request body: %v", err))
		return
	}
	if req.Length <= 0 {
		errorResponse(w, http.StatusBadRequest, "bad-request", errors.New("length must be positive"))
		return
	}
	if err := s.target.Commit(r.Context(), req.Length); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("firmware committed over http", log.Int("length", req.Length))
	syncResponse(w, StateResult{State: state.Swap})
}

func (s *Server) booted(w http.ResponseWriter, r *http.Request) {
	if err := s.target.Confirm(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	syncResponse(w, StateResult{State: state.Boot})
}

func (s *Server) dfu(w http.ResponseWriter, r *http.Request) {
	if err := s.target.RequestDFU(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	syncResponse(w, StateResult{State: state.DfuDetach})
}

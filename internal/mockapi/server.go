package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/assessment-cli/internal/model"
)

const (
	defaultLimit = 5
	maxLimit     = 20
)

// Option configures a Server.
type Option func(*Server)

// WithAPIKey requires requests to carry key in the x-api-key header.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithRateLimit answers 429 once more than burst requests arrive faster than
// perSec. perSec <= 0 disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// Server is a fake assessment API backed by a Fixture.
type Server struct {
	fixture  *Fixture
	expected model.AssessmentPayload
	apiKey   string
	limiter  *rate.Limiter

	mu          sync.Mutex
	attempts    map[int]int
	submissions []model.AssessmentPayload
}

// NewServer creates a Server for fixture.
func NewServer(fixture *Fixture, opts ...Option) (*Server, error) {
	if err := fixture.Validate(); err != nil {
		return nil, err
	}
	expected, err := fixture.Expected()
	if err != nil {
		return nil, err
	}
	s := &Server{
		fixture:  fixture,
		expected: expected,
		attempts: make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requireAPIKey)
	r.Use(s.rateLimit)

	r.Get("/patients", s.handlePatients)
	r.Post("/submit-assessment", s.handleSubmit)
	return r
}

// Submissions returns every payload received so far.
func (s *Server) Submissions() []model.AssessmentPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.submissions)
}

// Expected returns the payload a correct client would submit.
func (s *Server) Expected() model.AssessmentPayload {
	return s.expected
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "mockapi: listen %s", addr)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("mockapi: listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "mockapi: serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("mockapi: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", defaultLimit), maxLimit)

	if fault, ok := s.nextFault(page); ok {
		zap.L().Debug("mockapi: injecting fault",
			zap.Int("page", page),
			zap.String("kind", fault.Kind),
			zap.Int("status", fault.Status),
		)
		switch fault.Kind {
		case FaultStatus:
			writeJSON(w, fault.Status, map[string]string{"error": http.StatusText(fault.Status)})
		case FaultMalformed:
			writeJSON(w, http.StatusOK, map[string]any{"data": "unavailable", "pagination": map[string]any{"page": page}})
		case FaultGarbage:
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html><body>upstream timeout</body></html>"))
		}
		return
	}

	total := len(s.fixture.Patients)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"data": s.fixture.Patients[start:end],
		"pagination": pagination{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

// nextFault counts the request for page and returns the fault scheduled for
// that attempt, if any.
func (s *Server) nextFault(page int) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[page]++
	attempt := s.attempts[page]
	for _, f := range s.fixture.Faults {
		if f.Page == page && f.Attempt == attempt {
			return f, true
		}
	}
	return Fault{}, false
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload model.AssessmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, payload)
	attempt := len(s.submissions)
	s.mu.Unlock()

	g := Grade(s.expected, payload)
	zap.L().Info("mockapi: assessment graded",
		zap.Float64("percentage", g.Percentage),
		zap.String("status", g.Status),
		zap.Int("submission", attempt),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": g,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

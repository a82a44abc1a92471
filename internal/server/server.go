// Package server exposes the retrieval engine over HTTP: health and
// readiness probes, Prometheus metrics, and data-view fetch routes that
// answer with CSV.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/camlf/academic-hub/internal/app"
	"github.com/camlf/academic-hub/pkg/client"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/metrics"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Response headers.
const (
	// HeaderResumeToken carries the encoded resume token of a stored fetch
	// that reached its row ceiling.
	HeaderResumeToken = "X-Resume-Token"

	// HeaderFetchState carries the terminal state of a single-source fetch.
	HeaderFetchState = "X-Fetch-State"

	// HeaderNoStoredVersion lists sources without stored data.
	HeaderNoStoredVersion = "X-No-Stored-Version"
)

// Fetcher is the part of the engine the routes use.
type Fetcher interface {
	Fetch(ctx context.Context, req pagination.FetchRequest) (*pagination.Result, error)
	Resume(ctx context.Context, req pagination.FetchRequest, token *pagination.ResumeToken) (*pagination.Result, error)
}

// BatchFetcher fetches several sources at once.
type BatchFetcher interface {
	FetchAll(ctx context.Context, reqs []pagination.FetchRequest) (*pagination.BatchResult, error)
}

// Server is the HTTP front of the engine.
type Server struct {
	fetcher      Fetcher
	batch        BatchFetcher
	ready        func(ctx context.Context) error
	namespaces   func(dataset string) (string, error)
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// New creates a server over the assembled stack.
func New(a *app.App) *Server {
	return &Server{
		fetcher:      a.Paginator,
		batch:        a.Batch,
		ready:        a.Ready,
		namespaces:   a.Config.NamespaceOf,
		fetchTimeout: 30 * time.Minute,
		logger:       logging.NewLogger("server"),
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/namespaces/{namespace}/dataviews/{dataview}/data/{mode}", s.handleDataView)
	r.Get("/namespaces/{namespace}/data/{mode}", s.handleBatch)
	r.Get("/datasets/{dataset}/data/{mode}", s.handleBatch)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, "READY")
}

// handleDataView fetches one data view. A stored fetch continues from the
// token in the "resume" parameter when present.
func (s *Server) handleDataView(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, chi.URLParam(r, "namespace"), chi.URLParam(r, "dataview"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.fetchTimeout)
	defer cancel()

	var res *pagination.Result
	if encoded := r.URL.Query().Get("resume"); encoded != "" {
		token, err := pagination.DecodeResumeToken(encoded)
		if err != nil {
			s.writeError(w, r, &pagination.ValidationError{Field: "resume", Value: encoded, Err: err})
			return
		}
		res, err = s.fetcher.Resume(ctx, req, token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		res, err = s.fetcher.Fetch(ctx, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	w.Header().Set(HeaderFetchState, res.State.String())
	if res.Resume != nil {
		encoded, err := res.Resume.Encode()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set(HeaderResumeToken, encoded)
	}
	if res.State == pagination.StateNoStoredVersion {
		w.Header().Set(HeaderNoStoredVersion, req.SourceID)
	}
	s.writeTable(w, r, res.Table)
}

// handleBatch fetches the data views named by the repeated "source"
// parameter concurrently.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if dataset := chi.URLParam(r, "dataset"); dataset != "" {
		ns, err := s.namespaces(dataset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		namespace = ns
	}

	sources := r.URL.Query()["source"]
	if len(sources) == 0 {
		http.Error(w, "at least one source parameter is required", http.StatusBadRequest)
		return
	}

	reqs := make([]pagination.FetchRequest, 0, len(sources))
	for _, source := range sources {
		req, err := parseRequest(r, namespace, source)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		reqs = append(reqs, req)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.fetchTimeout)
	defer cancel()

	res, err := s.batch.FetchAll(ctx, reqs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, source := range res.NoStoredVersion {
		w.Header().Add(HeaderNoStoredVersion, source)
	}
	for source, token := range res.Resume {
		encoded, err := token.Encode()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Add(HeaderResumeToken, source+"="+encoded)
	}
	s.writeTable(w, r, res.Table)
}

func (s *Server) writeTable(w http.ResponseWriter, r *http.Request, tbl *table.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := tbl.WriteCSV(w); err != nil {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.Warn().
		Err(err).
		Int("status", status).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Fetch failed")
	http.Error(w, err.Error(), status)
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	var ve *pagination.ValidationError
	var se *query.StatusError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, pagination.ErrReauthenticate), errors.Is(err, client.ErrRequestBlocked):
		return http.StatusUnauthorized
	case errors.Is(err, pagination.ErrResumeMismatch), errors.Is(err, pagination.ErrNoRemainingData):
		return http.StatusConflict
	case errors.Is(err, pagination.ErrContextCancelled):
		return http.StatusGatewayTimeout
	case errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseRequest reads the fetch parameters of r.
func parseRequest(r *http.Request, namespace, sourceID string) (pagination.FetchRequest, error) {
	q := r.URL.Query()
	req := pagination.FetchRequest{
		SourceID:   sourceID,
		Namespace:  namespace,
		StartIndex: q.Get("startIndex"),
		EndIndex:   q.Get("endIndex"),
		Interval:   q.Get("interval"),
		Mode:       query.Mode(chi.URLParam(r, "mode")),
		SubSecond:  q.Get("subSecond") == "true",
		Raw:        q.Get("raw") == "true",
	}
	if v := q.Get("pageRowCap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, &pagination.ValidationError{Field: "page row cap", Value: v, Err: err}
		}
		req.PageRowCap = n
	}
	return req, nil
}

// Run serves the router on addr until ctx ends.
func Run(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting hub server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutting down hub server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

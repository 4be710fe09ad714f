package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomyedwab/d1lite/auth"
	"github.com/tomyedwab/d1lite/database"
	"github.com/tomyedwab/d1lite/httputils"
	"github.com/tomyedwab/d1lite/middleware"
)

// Executor runs one statement. *database.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, q database.Query) (*database.Result, error)
}

// AuditRecorder receives a record of every authorization failure and every
// executed statement. *audit.Logger satisfies it.
type AuditRecorder interface {
	LogUnauthorized(header string) error
	LogQuery(sql string, changedDB bool) error
	LogQueryFailed(sql string, changedDB bool, errorKind string) error
}

type Options struct {
	Gate              *auth.Gate
	Executor          Executor
	Audit             AuditRecorder // optional
	EnableCrossOrigin bool
	CompressResponses bool
}

// queryPaths are the D1 compatible routes. They all share one handler; the
// path parameters are accepted for URL compatibility and never read.
var queryPaths = []string{
	"/client/{version}/accounts/{accountId}/d1/database/{databaseId}/query",
	"/client/{version}/accounts/{accountId}/d1/database/{databaseId}/raw",
	"/query",
	"/raw",
}

// NewHandler builds the full HTTP surface: routes plus middleware.
func NewHandler(opts Options) http.Handler {
	h := &handlers{executor: opts.Executor, audit: opts.Audit}

	query := middleware.Chain(
		h.handleQuery,
		middleware.BearerRequired(opts.Gate, h.handleUnauthorized),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /check", h.handleCheck)
	for _, p := range queryPaths {
		mux.HandleFunc("POST "+p, query)
		mux.HandleFunc("POST "+p+"/{$}", query)
	}
	mux.HandleFunc("/", h.handleUnknownRoute)

	return middleware.Chain(
		mux.ServeHTTP,
		middleware.Compress(opts.CompressResponses),
		middleware.EnableCrossOrigin(opts.EnableCrossOrigin),
		middleware.SecureHeaders,
		middleware.LogRequests,
	)
}

type handlers struct {
	executor Executor
	audit    AuditRecorder
}

func (h *handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	httputils.WriteText(w, "Server is running", http.StatusOK)
}

func (h *handlers) handleUnknownRoute(w http.ResponseWriter, r *http.Request) {
	httputils.WriteText(w, "Unknown route", http.StatusNotFound)
}

func (h *handlers) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	if h.audit != nil {
		if err := h.audit.LogUnauthorized(r.Header.Get("Authorization")); err != nil {
			slog.Error("failed to record audit event", "error", err)
		}
	}
	httputils.WriteUnauthorized(w)
}

func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.TraceID(r.Context())

	req, params, err := decodeQueryRequest(r)
	if err != nil {
		h.fail(w, traceID, "", err)
		return
	}

	res, err := h.executor.Execute(r.Context(), database.Query{SQL: req.SQL, Params: params})
	if err != nil {
		h.fail(w, traceID, req.SQL, err)
		return
	}

	slog.Debug("statement executed",
		"traceID", traceID,
		"classification", res.Classification.String(),
	)
	if h.audit != nil {
		if err := h.audit.LogQuery(req.SQL, res.ChangedDB()); err != nil {
			slog.Error("failed to record audit event", "traceID", traceID, "error", err)
		}
	}
	httputils.WriteSuccess(w, res)
}

func (h *handlers) fail(w http.ResponseWriter, traceID, sql string, err error) {
	nerr := database.Normalize(err)
	code, _ := nerr.Get("code")
	slog.Warn("statement failed",
		"traceID", traceID,
		"kind", nerr.Kind.String(),
		"code", code,
		"error", nerr.Message(),
	)
	if h.audit != nil {
		if aerr := h.audit.LogQueryFailed(sql, !database.IsRead(sql), nerr.Kind.String()); aerr != nil {
			slog.Error("failed to record audit event", "traceID", traceID, "error", aerr)
		}
	}
	httputils.WriteFailure(w, nerr)
}

// Server is the HTTP listener for the bridge.
type Server struct {
	server *http.Server
}

func NewServer(addr string, opts Options) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(opts),
			ReadHeaderTimeout: 30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start blocks serving requests until Stop is called. It returns
// http.ErrServerClosed after a clean stop.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "address", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop waits for in-flight requests to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

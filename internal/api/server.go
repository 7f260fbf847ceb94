// Package api exposes plan ingestion, diff review and apply, and job
// import over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/jobs"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/plandiff"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

// Service is the set of operations the API serves.
type Service interface {
	CreatePlan(ctx context.Context, customerID, name string) (*model.Plan, error)
	CreateVersion(ctx context.Context, planID, sourceFileName, fileURL string) (*model.PlanVersion, error)
	ListVersions(ctx context.Context, planID string) ([]model.PlanVersion, error)
	ParseVersion(ctx context.Context, planID, versionID string) (*planfile.ParseResult, error)
	ComputeDiff(ctx context.Context, planID string, fromVersionID *string, toVersionID string) (*model.PlanDiff, []model.PlanDiffItem, error)
	GetDiff(ctx context.Context, diffID string) (*model.PlanDiff, []model.PlanDiffItem, error)
	ReviewDiff(ctx context.Context, diffID string, approve bool) (*model.PlanDiff, error)
	ApplyDiff(ctx context.Context, diffID string) (*plandiff.ApplyResult, error)
	ImportJobs(ctx context.Context, customerID, sourceFileName, fileURL string) (*jobs.ImportResult, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error)
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// Health reports backend health; nil means always healthy.
	Health func(ctx context.Context) error
}

type server struct {
	svc    Service
	health func(ctx context.Context) error
}

// NewRouter builds the HTTP handler.
func NewRouter(svc Service, opts Options) http.Handler {
	s := &server{svc: svc, health: opts.Health}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/plans", func(r chi.Router) {
		r.Post("/", s.handleCreatePlan)
		r.Post("/{planID}/versions", s.handleCreateVersion)
		r.Get("/{planID}/versions", s.handleListVersions)
		r.Post("/{planID}/versions/{versionID}/parse", s.handleParseVersion)
		r.Post("/{planID}/diffs", s.handleComputeDiff)
	})
	r.Route("/diffs/{diffID}", func(r chi.Router) {
		r.Get("/", s.handleGetDiff)
		r.Post("/review", s.handleReviewDiff)
		r.Post("/apply", s.handleApplyDiff)
	})
	r.Post("/imports", s.handleImport)
	r.Get("/jobs", s.handleListJobs)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

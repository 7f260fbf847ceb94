// Package pipeline wires file retrieval, parsing, diffing, review, apply
// and job import into the operations exposed by the API and CLI.
package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/fetcher"
	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/jobs"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/plandiff"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

// ErrInvalidRequest is returned when a request is missing required input
// or names entities that do not belong together.
var ErrInvalidRequest = errors.New("pipeline: invalid request")

// ErrAlreadyParsed is returned when parsing a version whose lines are
// already stored. Parsed versions are immutable.
var ErrAlreadyParsed = errors.New("pipeline: version already parsed")

// Service runs plan and import operations against a store.
type Service struct {
	Store    store.Store
	Fetcher  fetcher.Fetcher
	Engine   *plandiff.Engine
	Applier  *plandiff.Applier
	Importer *jobs.Importer
	Aliases  planfile.Aliases
}

// New creates a Service. Ops task numbers come from tasks.
func New(st store.Store, f fetcher.Fetcher, aliases planfile.Aliases, tasks idgen.Generator) *Service {
	return &Service{
		Store:    st,
		Fetcher:  f,
		Engine:   plandiff.NewEngine(st),
		Applier:  plandiff.NewApplier(st, tasks),
		Importer: jobs.NewImporter(st, aliases),
		Aliases:  aliases,
	}
}

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidRequest, format, args...)
}

// CreatePlan creates a draft plan for a customer.
func (s *Service) CreatePlan(ctx context.Context, customerID, name string) (*model.Plan, error) {
	if customerID == "" || name == "" {
		return nil, invalid("customer_id and name are required")
	}
	return s.Store.CreatePlan(ctx, customerID, name)
}

// CreateVersion registers an uploaded file as the next version of a plan.
func (s *Service) CreateVersion(ctx context.Context, planID, sourceFileName, fileURL string) (*model.PlanVersion, error) {
	if fileURL == "" {
		return nil, invalid("file_url is required")
	}
	if _, err := s.Store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return s.Store.CreatePlanVersion(ctx, planID, sourceFileName, fileURL)
}

// ListVersions returns a plan's versions in upload order.
func (s *Service) ListVersions(ctx context.Context, planID string) ([]model.PlanVersion, error) {
	if _, err := s.Store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return s.Store.ListPlanVersions(ctx, planID)
}

// ParseVersion fetches and parses a version's file. Validation failures
// are recorded on the version and returned in the result; the error return
// is reserved for missing entities and infrastructure failures.
func (s *Service) ParseVersion(ctx context.Context, planID, versionID string) (*planfile.ParseResult, error) {
	v, err := s.Store.GetPlanVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.PlanID != planID {
		return nil, invalid("version %s does not belong to plan %s", versionID, planID)
	}
	if v.ParseStatus == model.ParseStatusParsed {
		return nil, eris.Wrapf(ErrAlreadyParsed, "pipeline: parse version %s", versionID)
	}

	records, result, err := s.load(ctx, v.SourceFileName, v.FileURL)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = planfile.ParseRecords(records, planfile.Options{
			Required: planfile.PlanRequired,
			Aliases:  s.Aliases,
		})
	}

	log := zap.L().With(zap.String("plan_id", planID), zap.String("version_id", versionID))
	if result.Status == planfile.StatusFailed {
		if err := s.Store.MarkParseFailed(ctx, versionID, result.Errors); err != nil {
			return nil, parseConflict(err, "pipeline: record parse failure")
		}
		log.Info("plan version failed validation", zap.Int("errors", len(result.Errors)))
		return result, nil
	}

	if err := s.Store.SaveParsedLines(ctx, versionID, result.Lines); err != nil {
		return nil, parseConflict(err, "pipeline: save parsed lines")
	}
	log.Info("plan version parsed", zap.Int("rows", result.RowsCount()))
	return result, nil
}

// parseConflict reports a version parsed by a concurrent caller as
// ErrAlreadyParsed.
func parseConflict(err error, msg string) error {
	if errors.Is(err, store.ErrStatusConflict) {
		return eris.Wrap(ErrAlreadyParsed, msg)
	}
	return eris.Wrap(err, msg)
}

// load fetches a file and tokenizes it into records. A file that cannot
// be tokenized yields a failed parse result instead of records.
func (s *Service) load(ctx context.Context, fileName, fileURL string) ([][]string, *planfile.ParseResult, error) {
	data, err := s.Fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: fetch %s", fileURL)
	}

	malformed := func(err error) *planfile.ParseResult {
		return &planfile.ParseResult{
			Status: planfile.StatusFailed,
			Errors: []model.RowError{{Row: 0, Error: "malformed file: " + err.Error()}},
		}
	}

	if fetcher.IsXLSX(fileName, data) {
		rows, err := fetcher.ReadXLSX(data, fetcher.XLSXOptions{})
		if err != nil {
			return nil, malformed(err), nil
		}
		return planfile.DropBlank(rows), nil, nil
	}

	text, err := fetcher.DecodeText(data)
	if err != nil {
		return nil, malformed(err), nil
	}
	records, err := planfile.Records(text)
	if err != nil {
		return nil, malformed(err), nil
	}
	return records, nil, nil
}

// LatestVersion as a from version means the to version of the plan's
// last applied diff.
const LatestVersion = "latest"

// ComputeDiff diffs toVersionID against fromVersionID. A nil or empty
// fromVersionID diffs against nothing; LatestVersion diffs against the last
// applied version, or against nothing when no diff has been applied.
func (s *Service) ComputeDiff(ctx context.Context, planID string, fromVersionID *string, toVersionID string) (*model.PlanDiff, []model.PlanDiffItem, error) {
	if toVersionID == "" {
		return nil, nil, invalid("to_version_id is required")
	}
	if _, err := s.Store.GetPlan(ctx, planID); err != nil {
		return nil, nil, err
	}

	if fromVersionID != nil {
		switch *fromVersionID {
		case "":
			fromVersionID = nil
		case LatestVersion:
			base, err := s.Engine.ResolveBaseVersion(ctx, planID)
			if err != nil {
				return nil, nil, err
			}
			fromVersionID = base
		}
	}
	return s.Engine.Compute(ctx, planID, fromVersionID, toVersionID)
}

// GetDiff returns a diff and its items.
func (s *Service) GetDiff(ctx context.Context, diffID string) (*model.PlanDiff, []model.PlanDiffItem, error) {
	diff, err := s.Store.GetDiff(ctx, diffID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.Store.ListDiffItems(ctx, diffID)
	if err != nil {
		return nil, nil, err
	}
	return diff, items, nil
}

// ReviewDiff records the customer's decision on a diff awaiting review.
// A rejected diff moves its plan to customer_rejected.
func (s *Service) ReviewDiff(ctx context.Context, diffID string, approve bool) (*model.PlanDiff, error) {
	to := model.DiffStatusCustomerApproved
	if !approve {
		to = model.DiffStatusCustomerRejected
	}

	err := s.Store.TransitionDiffStatus(ctx, diffID, model.DiffStatusNeedsCustomerReview, to)
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, eris.Wrapf(plandiff.ErrPrecondition, "pipeline: diff %s is not awaiting review", diffID)
	}
	if err != nil {
		return nil, err
	}

	diff, err := s.Store.GetDiff(ctx, diffID)
	if err != nil {
		return nil, err
	}
	if !approve {
		if err := s.Store.UpdatePlanStatus(ctx, diff.PlanID, model.PlanStatusCustomerRejected); err != nil {
			return nil, eris.Wrap(err, "pipeline: update plan status")
		}
	}

	zap.L().Info("diff reviewed", zap.String("diff_id", diffID), zap.String("status", string(to)))
	return diff, nil
}

// ApplyDiff applies an approved diff to the live job set.
func (s *Service) ApplyDiff(ctx context.Context, diffID string) (*plandiff.ApplyResult, error) {
	return s.Applier.Apply(ctx, diffID)
}

// ImportJobs fetches a file and creates jobs from it directly.
func (s *Service) ImportJobs(ctx context.Context, customerID, sourceFileName, fileURL string) (*jobs.ImportResult, error) {
	if customerID == "" || fileURL == "" {
		return nil, invalid("customer_id and file_url are required")
	}

	records, failed, err := s.load(ctx, sourceFileName, fileURL)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return &jobs.ImportResult{Status: failed.Status, Errors: failed.Errors}, nil
	}
	return s.Importer.ImportRecords(ctx, customerID, records)
}

// ListJobs lists jobs matching the filter.
func (s *Service) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error) {
	return s.Store.ListJobs(ctx, filter)
}

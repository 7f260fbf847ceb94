package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

// ImportResult is the outcome of an ad-hoc job import.
type ImportResult struct {
	Status       planfile.Status  `json:"status"`
	CreatedCount int              `json:"createdCount"`
	Errors       []model.RowError `json:"errors,omitempty"`
}

// Importer creates jobs straight from a file, without plan versions or
// diffs.
type Importer struct {
	Store   store.Store
	Batches idgen.Generator
	Aliases planfile.Aliases
}

// NewImporter creates an Importer using random batch IDs.
func NewImporter(st store.Store, aliases planfile.Aliases) *Importer {
	return &Importer{Store: st, Batches: idgen.UUID{}, Aliases: aliases}
}

// Import parses raw delimited text and creates one job per job key.
func (im *Importer) Import(ctx context.Context, customerID, raw string) (*ImportResult, error) {
	records, err := planfile.Records(raw)
	if err != nil {
		return &ImportResult{
			Status: planfile.StatusFailed,
			Errors: []model.RowError{{Row: 0, Error: "malformed file: " + err.Error()}},
		}, nil
	}
	return im.ImportRecords(ctx, customerID, records)
}

// ImportRecords is Import for already tokenized records, such as rows read
// from a spreadsheet. Validation problems are reported in the result; the
// error return is reserved for store failures.
func (im *Importer) ImportRecords(ctx context.Context, customerID string, records [][]string) (*ImportResult, error) {
	parsed := planfile.ParseRecords(records, planfile.Options{
		Required: planfile.ImportRequired,
		Aliases:  im.Aliases,
	})
	if parsed.Status == planfile.StatusFailed {
		return &ImportResult{Status: planfile.StatusFailed, Errors: parsed.Errors}, nil
	}

	batchID := im.Batches.NewID()
	keys, groups := planfile.GroupByJobKey(parsed.Lines)
	jobs := make([]model.Job, 0, len(keys))
	for _, key := range keys {
		job := Materialize(groups[key], Ref{CustomerID: customerID})
		job.Source = model.JobSourceImport
		job.JobNumber = JobNumber(ImportPrefix, batchID, key)
		jobs = append(jobs, job)
	}

	n, err := im.Store.CreateJobs(ctx, jobs)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: create imported jobs")
	}

	zap.L().Info("imported jobs",
		zap.String("customer_id", customerID),
		zap.String("batch_id", batchID),
		zap.Int("created", n),
	)
	return &ImportResult{Status: planfile.StatusSuccess, CreatedCount: n}, nil
}

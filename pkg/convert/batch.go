package convert

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// JobError attributes a batch failure to its archive.
type JobError struct {
	Archive string
	Err     error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Archive, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Report is the outcome of a batch.
type Report struct {
	RunID string
	// Results is indexed like the jobs. Entries of jobs that did not finish
	// are nil.
	Results []*Result
}

// Batch converts jobs concurrently, at most the configured number of workers
// at a time. The first failure cancels the jobs that have not finished and is
// returned as a *JobError.
func (c *Converter) Batch(ctx context.Context, jobs []Job) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Results: make([]*Result, len(jobs)),
	}
	log := c.log.WithRun(report.RunID)

	seen := make(map[string]string, len(jobs))
	for _, job := range jobs {
		stage := StageDir(job)
		if prev, ok := seen[stage]; ok {
			return report, &JobError{Archive: job.Archive, Err: fmt.Errorf("%w: %s is also staged by %s", ErrStageExists, stage, prev)}
		}
		seen[stage] = job.Archive
	}

	log.Info("batch started", "jobs", len(jobs), "workers", c.workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := c.convert(ctx, job, log)
			if err != nil {
				return &JobError{Archive: job.Archive, Err: err}
			}
			report.Results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("batch failed", "error", err)
		return report, err
	}

	log.Info("batch finished", "jobs", len(jobs))
	return report, nil
}

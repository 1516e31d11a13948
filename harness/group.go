package harness

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one run of a concurrent group.
type Job struct {
	Runner *Runner
	Config RunConfig
}

// RunConcurrent starts every job at the same time and waits for all of
// them. Results are returned in job order. When a job fails the others
// are stopped through their context and the first error is returned.
func RunConcurrent(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)

	for i, job := range jobs {
		g.Go(func() error {
			result, err := job.Runner.Run(ctx, job.Config)
			if err != nil {
				return err
			}

			results[i] = *result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

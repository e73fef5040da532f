package main

import (
	"context"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/rozentia/tubextend/internal/tasks"
)

// Monitor runs the ingestion pipeline for one user and reports the
// generation jobs it queued.
func (r *Runner) Monitor(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	userID := cmd.String("user")

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	provider := r.buildProvider(config, catalog, userID)
	engine := tasks.NewMonitorEngine(catalog, provider, config.Monitor, r.logger)

	var progress chan tasks.ProgressUpdate
	var wg sync.WaitGroup

	if !cmd.Bool("quiet") {
		progress = make(chan tasks.ProgressUpdate, 64)
		wg.Add(1)

		go func() {
			defer wg.Done()
			for update := range progress {
				if update.Err != nil {
					r.logger.Warn(update.String(), "error", update.Err)
					continue
				}
				r.logger.Info(update.String())
			}
		}()
	}

	jobs, err := engine.Run(ctx, userID, progress)

	if progress != nil {
		close(progress)
		wg.Wait()
	}

	if err != nil {
		return err
	}

	used, ceiling := engine.Quota().Usage()
	r.logger.Info("run complete", "jobs_created", len(jobs), "quota_used", used, "quota_ceiling", ceiling)

	if cmd.Bool("json") {
		return r.writeJSON(jobs, true)
	}

	for _, job := range jobs {
		if err := r.writePlainln("job %s  source %s  %d videos", job.ID, job.SourceID, len(job.Config.VideoIDs())); err != nil {
			return err
		}
	}

	return nil
}

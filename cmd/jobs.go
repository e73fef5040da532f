package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// JobsShow prints one generation job by id.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := catalog.Jobs.Get(cmd.String("id"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}

	return r.writePlainln("job %s  user %s  source %s  status %s  %d videos",
		job.ID, job.UserID, job.SourceID, job.Status, len(job.Config.VideoIDs()))
}

// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// rootCommand assembles the CLI entry point around a Runner.
func rootCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tubextend",
		Usage:   "Monitor YouTube sources and queue podcast generation jobs",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.beforeAll,
		Commands: r.register(),
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// usersCommand manages monitored accounts
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage monitored user accounts",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a user whose sources will be monitored",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "email",
						Usage:    "User email address",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name",
					},
				},
				Action: r.UsersAdd,
			},
		},
	}
}

// sourcesCommand manages monitoring sources
func sourcesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sources",
		Aliases: []string{"src"},
		Usage:   "Manage channel collections and playlist sources",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a source for a user",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "user",
						Usage:    "Owning user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Source display name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Source type: channel_collection or playlist",
						Value: "channel_collection",
					},
					&cli.StringFlag{
						Name:  "playlist-id",
						Usage: "YouTube playlist ID (playlist sources only)",
					},
					&cli.StringFlag{
						Name:  "prefs",
						Usage: "Source preferences as a JSON object",
					},
				},
				Action: r.SourcesAdd,
			},
			{
				Name:  "link",
				Usage: "Link a YouTube channel to a collection source",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "channel",
						Usage:    "YouTube channel ID",
						Required: true,
					},
				},
				Action: r.SourcesLink,
			},
			{
				Name:  "unlink",
				Usage: "Remove a channel from a collection source",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "channel",
						Usage:    "YouTube channel ID",
						Required: true,
					},
				},
				Action: r.SourcesUnlink,
			},
			{
				Name:  "list",
				Usage: "List a user's sources",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "user",
						Usage:    "Owning user ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SourcesList,
			},
		},
	}
}

// monitorCommand runs the ingestion pipeline
func monitorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"run"},
		Usage:   "Check a user's sources for new videos and queue generation jobs",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "user",
				Usage:    "User ID to monitor",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output created jobs as JSON",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress per-channel progress output",
			},
		},
		Action: r.Monitor,
	}
}

// jobsCommand inspects queued generation jobs
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect generation jobs",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one job by ID",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Job ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
						Value: true,
					},
				},
				Action: r.JobsShow,
			},
		},
	}
}

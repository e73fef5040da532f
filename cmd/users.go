package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// UsersAdd registers a user account for monitoring.
func (r *Runner) UsersAdd(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	user := &models.User{
		ID:          shared.GenerateID(),
		Email:       cmd.String("email"),
		DisplayName: cmd.String("name"),
	}

	if err := catalog.Users.Insert(user); err != nil {
		return err
	}

	r.logger.Info("user registered", "user_id", user.ID, "email", user.Email)

	return r.writePlainln("%s", user.ID)
}

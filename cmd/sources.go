package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// SourcesAdd creates a monitoring source for a user.
func (r *Runner) SourcesAdd(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	source := &models.Source{
		UserID: cmd.String("user"),
		Type:   models.SourceType(cmd.String("type")),
		Name:   cmd.String("name"),
	}

	if playlistID := cmd.String("playlist-id"); playlistID != "" {
		source.YouTubePlaylistID = &playlistID
	}

	if prefs := cmd.String("prefs"); prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &source.Preferences); err != nil {
			return fmt.Errorf("%w: --prefs must be a JSON object: %v", shared.ErrInvalidInput, err)
		}
	}

	if err := catalog.Sources.Insert(source); err != nil {
		return err
	}

	r.logger.Info("source created", "source_id", source.ID, "type", source.Type)

	return r.writePlainln("%s", source.ID)
}

// SourcesLink attaches a channel to a collection source, resolving the
// channel upstream first so the catalog holds a record before the next run.
func (r *Runner) SourcesLink(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	sourceID := cmd.String("source")
	channelID := cmd.String("channel")

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := catalog.Sources.Get(sourceID)
	if err != nil {
		return err
	}

	if source.Type != models.SourceTypeChannelCollection {
		return fmt.Errorf("%w: source %s is a %s source, only channel collections take channels",
			shared.ErrInvalidInput, source.ID, source.Type)
	}

	if _, err := catalog.Channels.Get(channelID); err != nil {
		provider := r.buildProvider(config, catalog, source.UserID)

		channel, err := provider.FetchChannelInfo(ctx, channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return fmt.Errorf("%w: channel %s", shared.ErrNotFound, channelID)
		}

		if err := catalog.Channels.Insert(channel); err != nil {
			return err
		}

		r.logger.Info("channel added to catalog", "channel_id", channelID, "title", channel.Title)
	}

	if err := catalog.Sources.LinkChannel(sourceID, channelID); err != nil {
		return err
	}

	r.logger.Info("channel linked", "source_id", sourceID, "channel_id", channelID)
	return nil
}

// SourcesUnlink removes a channel from a collection source. The channel's
// catalog record and already-linked videos stay.
func (r *Runner) SourcesUnlink(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	sourceID := cmd.String("source")
	channelID := cmd.String("channel")

	if err := catalog.Sources.UnlinkChannel(sourceID, channelID); err != nil {
		return err
	}

	r.logger.Info("channel unlinked", "source_id", sourceID, "channel_id", channelID)
	return nil
}

// SourcesList prints a user's sources.
func (r *Runner) SourcesList(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, catalog, err := r.openCatalog(config)
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := catalog.Sources.ListByUser(cmd.String("user"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(sources, true)
	}

	for _, source := range sources {
		checkpoint := "never run"
		if source.LastProcessedAt != nil {
			checkpoint = source.LastProcessedAt.Format("2006-01-02 15:04:05")
		}

		if err := r.writePlainln("%s  %-18s  %-24s  last run: %s", source.ID, source.Type, source.Name, checkpoint); err != nil {
			return err
		}

		if source.Type != models.SourceTypeChannelCollection {
			continue
		}

		channels, err := catalog.Channels.ListBySource(source.ID)
		if err != nil {
			return err
		}
		for _, channel := range channels {
			if err := r.writePlainln("    %s  %s", channel.YouTubeChannelID, channel.Title); err != nil {
				return err
			}
		}
	}

	return nil
}

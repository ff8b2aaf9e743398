package main

import (
	"context"
	"fmt"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/tasks"
	"github.com/urfave/cli/v3"
)

// runItemMeta submits one item meta task and prints the updated record.
func (r *Runner) runItemMeta(cmd *cli.Command, task engine.Task) error {
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, task)
		if err != nil {
			return err
		}
		item := resp.(records.UpdatedItem).Item
		return r.writePlain("%s: unseen=%t position=%.1f plays=%d download=%s\n",
			item.Val.ID, item.Meta.Unseen, item.Meta.Position, item.Meta.PlayCount, item.Meta.Download.State)
	})
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	value := cmd.StringArg(name)
	if value == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return value, nil
}

// MetaSeen clears an item's unseen flag.
func (r *Runner) MetaSeen(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewMarkItemSeen(itemID))
}

// MetaPlayed marks an item played.
func (r *Runner) MetaPlayed(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewMarkItemPlayed(itemID))
}

// MetaPosition records a playback position for an item.
func (r *Runner) MetaPosition(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewSetItemPosition(itemID, cmd.Float("seconds")))
}

// MetaFeedActive toggles a feed's active flag.
func (r *Runner) MetaFeedActive(ctx context.Context, cmd *cli.Command) error {
	feedID, err := requireArg(cmd, "feed")
	if err != nil {
		return err
	}
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewSetFeedActive(feedID, cmd.Bool("active")))
		if err != nil {
			return err
		}
		feed := resp.(records.UpdatedFeed).Feed
		return r.writePlain("%s: active=%t\n", feed.Val.ID, feed.Meta.Active)
	})
}

// MetaChannelActive toggles a channel's active flag.
func (r *Runner) MetaChannelActive(ctx context.Context, cmd *cli.Command) error {
	channelID, err := requireArg(cmd, "channel")
	if err != nil {
		return err
	}
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewSetChannelActive(channelID, cmd.Bool("active")))
		if err != nil {
			return err
		}
		channel := resp.(records.UpdatedChannel).Channel
		return r.writePlain("%s: active=%t\n", channel.Val.ID, channel.Meta.Active)
	})
}

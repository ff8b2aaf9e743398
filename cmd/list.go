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

// ListFeeds prints the cached feed subscriptions.
func (r *Runner) ListFeeds(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewListFeeds(cmd.Bool("active")))
		if err != nil {
			return err
		}
		list := resp.(records.FeedList)

		if cmd.Bool("json") {
			return r.writeJSON(list, cmd.Bool("pretty"))
		}
		r.writePlain("Feeds: %d\n\n", len(list.Feeds))
		for i, feed := range list.Feeds {
			r.writePlain("%d. %s [%s] active=%t\n", i+1, feed.Val.Title, feed.Val.ID, feed.Meta.Active)
		}
		return nil
	})
}

// ListChannels prints cached channels, optionally scoped to one feed.
func (r *Runner) ListChannels(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewListChannels(cmd.String("feed"), cmd.Bool("active")))
		if err != nil {
			return err
		}
		list := resp.(records.ChannelList)

		if cmd.Bool("json") {
			return r.writeJSON(list, cmd.Bool("pretty"))
		}
		r.writePlain("Channels: %d\n\n", len(list.Channels))
		for i, channel := range list.Channels {
			r.writePlain("%d. %s [%s] latest=%s active=%t\n",
				i+1, channel.Val.Title, channel.Val.ID, channel.Keys.LatestBucket, channel.Meta.Active)
		}
		return nil
	})
}

// ListItems prints cached items, scoped to a channel or one month bucket.
func (r *Runner) ListItems(ctx context.Context, cmd *cli.Command) error {
	channelID := cmd.String("channel")
	bucket := cmd.String("bucket")
	if bucket != "" && channelID == "" {
		return fmt.Errorf("%w: --bucket requires --channel", shared.ErrMissingArgument)
	}

	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		var task engine.Task
		if bucket != "" {
			task = tasks.NewItemsByBucket(channelID, bucket)
		} else {
			task = tasks.NewListItems(channelID)
		}
		resp, err := r.do(eng, task)
		if err != nil {
			return err
		}
		list := resp.(records.ItemList)

		if cmd.Bool("json") {
			return r.writeJSON(list, cmd.Bool("pretty"))
		}
		r.writePlain("Items: %d\n\n", len(list.Items))
		for i, item := range list.Items {
			marker := " "
			if item.Meta.Unseen {
				marker = "*"
			}
			r.writePlain("%d.%s %s [%s] %s download=%s\n",
				i+1, marker, item.Val.Title, item.Val.ID,
				records.Bucket(item.Val.PubTS), item.Meta.Download.State)
		}
		return nil
	})
}

// ListBuckets prints the month buckets a channel has items in, newest
// first.
func (r *Runner) ListBuckets(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewListBuckets(cmd.String("channel"), int(cmd.Int("limit"))))
		if err != nil {
			return err
		}
		list := resp.(records.BucketList)

		if cmd.Bool("json") {
			return r.writeJSON(list, true)
		}
		r.writePlain("Buckets for %s: %d\n\n", list.ChannelID, len(list.Buckets))
		for i, bucket := range list.Buckets {
			r.writePlain("%d. %s\n", i+1, bucket)
		}
		return nil
	})
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/tasks"
	"github.com/urfave/cli/v3"
)

// DownloadQueue lists the items waiting on a download.
func (r *Runner) DownloadQueue(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewItemsDownloadRequired())
		if err != nil {
			return err
		}
		list := resp.(records.ItemList)

		if cmd.Bool("json") {
			return r.writeJSON(list, true)
		}
		r.writePlain("Queue: %d\n\n", len(list.Items))
		for i, item := range list.Items {
			r.writePlain("%d. %s [%s] %s %s\n",
				i+1, item.Val.Title, item.Val.ID, item.Meta.Download.State, item.Val.EnclosureURL)
		}
		return nil
	})
}

// DownloadRequest marks an item's download as pending.
func (r *Runner) DownloadRequest(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewRequestDownload(itemID))
}

// DownloadStart marks a pending download as in progress.
func (r *Runner) DownloadStart(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewMarkDownloadInProgress(itemID))
}

// DownloadDone stores a finished download and marks the item ok. The blob
// and the status flip commit in one transaction.
func (r *Runner) DownloadDone(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read enclosure file: %w", err)
	}

	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		if limit := config.Sync.MaxEnclosureBytes; limit > 0 && int64(len(data)) > limit {
			return fmt.Errorf("%w: enclosure is %d bytes, cap is %d", shared.ErrInvalidInput, len(data), limit)
		}
		resp, err := r.do(eng, tasks.NewStoreEnclosure(itemID, data))
		if err != nil {
			return err
		}
		item := resp.(records.UpdatedItem).Item
		return r.writePlain("%s: download=%s size=%d\n", item.Val.ID, item.Meta.Download.State, item.Meta.Download.Size)
	})
}

// DownloadFail records a download failure.
func (r *Runner) DownloadFail(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewMarkDownloadFailed(itemID, cmd.String("message")))
}

// DownloadCancel returns an unfinished download to not requested.
func (r *Runner) DownloadCancel(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.runItemMeta(cmd, tasks.NewCancelDownload(itemID))
}

// DownloadDelete removes a stored enclosure and clears the item's download
// state.
func (r *Runner) DownloadDelete(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewDeleteEnclosure(itemID))
		if err != nil {
			return err
		}
		item := resp.(records.UpdatedItem).Item
		return r.writePlain("%s: download=%s\n", item.Val.ID, item.Meta.Download.State)
	})
}

// DownloadGet writes a stored enclosure to a file.
func (r *Runner) DownloadGet(ctx context.Context, cmd *cli.Command) error {
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	outputPath := cmd.String("output")

	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewGetEnclosure(itemID))
		if err != nil {
			return err
		}
		blob := resp.(records.Blob)
		if err := os.WriteFile(outputPath, blob.Data, 0644); err != nil {
			return fmt.Errorf("failed to write enclosure file: %w", err)
		}
		return r.writePlain("wrote %d bytes to %s\n", len(blob.Data), outputPath)
	})
}

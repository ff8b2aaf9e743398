package main

import (
	"context"
	"fmt"
	"os"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/formatter"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ExportChannel writes a channel's item listing to CSV, Markdown or plain
// text.
func (r *Runner) ExportChannel(ctx context.Context, cmd *cli.Command) error {
	channelID := cmd.String("channel")
	format := cmd.String("format")
	outputPath := cmd.String("output")

	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewGetChannel(channelID))
		if err != nil {
			return err
		}
		channels := resp.(records.ChannelList)
		if len(channels.Channels) == 0 {
			return fmt.Errorf("%w: channel %s", shared.ErrNotFound, channelID)
		}
		channel := channels.Channels[0]

		resp, err = r.do(eng, tasks.NewListItems(channelID))
		if err != nil {
			return err
		}
		items := resp.(records.ItemList).Items

		switch format {
		case "csv":
			file, err := formatter.WriteCSVExport(channel, items, outputPath)
			if err != nil {
				return err
			}
			return r.writePlain("exported %d items to %s\n", len(items), file)
		case "md", "markdown":
			file, err := formatter.WriteMarkdownExport(channel, items, outputPath)
			if err != nil {
				return err
			}
			return r.writePlain("exported %d items to %s\n", len(items), file)
		case "text":
			textData, err := formatter.ItemsToText(channel, items)
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = fmt.Sprintf("%s_items.txt", channel.Val.ID)
			}
			if err := os.WriteFile(outputPath, textData, 0644); err != nil {
				return fmt.Errorf("failed to write text file: %w", err)
			}
			return r.writePlain("exported %d items to %s\n", len(items), outputPath)
		default:
			return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
		}
	})
}

// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles database initialization and migration rollback.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// syncCommand reconciles a fetched feed document into the local cache.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile a feed document into the local cache",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path to a saved RSS/Atom document",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Feed URL to fetch and reconcile",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output sync summary as JSON",
			},
		},
		Action: r.SyncRun,
	}
}

// listCommand handles read-only queries over the cache.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List cached feeds, channels and items",
		Commands: []*cli.Command{
			{
				Name:  "feeds",
				Usage: "List feed subscriptions",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "active", Usage: "Only active feeds"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.ListFeeds,
			},
			{
				Name:  "channels",
				Usage: "List channels",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "feed", Usage: "Scope to one feed ID"},
					&cli.BoolFlag{Name: "active", Usage: "Only active channels"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.ListChannels,
			},
			{
				Name:  "items",
				Usage: "List items, optionally scoped to a channel or month bucket",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "channel", Usage: "Scope to one channel ID"},
					&cli.StringFlag{Name: "bucket", Usage: "Year-month bucket, e.g. 2024-03 (requires --channel)"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.ListItems,
			},
			{
				Name:  "buckets",
				Usage: "List the month buckets a channel has items in, newest first",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "channel", Usage: "Channel ID", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of buckets (0 for all)"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.ListBuckets,
			},
		},
	}
}

// metaCommand handles local-only record state: seen flags, playback
// position, active toggles.
func metaCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "meta",
		Usage: "Update local-only record state",
		Commands: []*cli.Command{
			{
				Name:      "seen",
				Usage:     "Clear an item's unseen flag",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.MetaSeen,
			},
			{
				Name:      "played",
				Usage:     "Mark an item played: bump play count, rewind position",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.MetaPlayed,
			},
			{
				Name:      "position",
				Usage:     "Record a playback position",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.FloatFlag{Name: "seconds", Usage: "Position in seconds", Required: true},
				},
				Action: r.MetaPosition,
			},
			{
				Name:      "feed-active",
				Usage:     "Toggle whether a feed participates in syncs",
				Arguments: []cli.Argument{&cli.StringArg{Name: "feed"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "active", Usage: "Active state to set", Value: true},
				},
				Action: r.MetaFeedActive,
			},
			{
				Name:      "channel-active",
				Usage:     "Toggle whether a channel's items are listed and synced",
				Arguments: []cli.Argument{&cli.StringArg{Name: "channel"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "active", Usage: "Active state to set", Value: true},
				},
				Action: r.MetaChannelActive,
			},
		},
	}
}

// downloadCommand drives the download state machine and the enclosure blob
// store. The actual byte transfer belongs to an external downloader; these
// commands record its lifecycle.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Manage item download state and stored enclosures",
		Commands: []*cli.Command{
			{
				Name:   "queue",
				Usage:  "List items waiting on a download",
				Flags:  []cli.Flag{configFlag(), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.DownloadQueue,
			},
			{
				Name:      "request",
				Usage:     "Mark an item's download as pending",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.DownloadRequest,
			},
			{
				Name:      "start",
				Usage:     "Mark a pending download as in progress",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.DownloadStart,
			},
			{
				Name:      "done",
				Usage:     "Store a finished download and mark the item ok",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "file", Usage: "Path to the downloaded enclosure", Required: true},
				},
				Action: r.DownloadDone,
			},
			{
				Name:      "fail",
				Usage:     "Record a download failure",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "message", Usage: "Failure message", Required: true},
				},
				Action: r.DownloadFail,
			},
			{
				Name:      "cancel",
				Usage:     "Return a pending, in-progress or failed download to not requested",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.DownloadCancel,
			},
			{
				Name:      "delete",
				Usage:     "Delete a stored enclosure and clear the item's download state",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.DownloadDelete,
			},
			{
				Name:      "get",
				Usage:     "Write a stored enclosure to a file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "item"}},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path", Required: true},
				},
				Action: r.DownloadGet,
			},
		},
	}
}

// exportCommand writes channel listings to CSV, Markdown or plain text.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a channel's items to a file",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "channel", Usage: "Channel ID to export", Required: true},
			&cli.StringFlag{Name: "format", Usage: "Export format (csv, md, text)", Value: "csv"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path"},
		},
		Action: r.ExportChannel,
	}
}

// configCommand reads and writes values in the cache's config store.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Read and write stored configuration values",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Read one configuration value",
				Arguments: []cli.Argument{&cli.StringArg{Name: "key"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.ConfigGet,
			},
			{
				Name:      "set",
				Usage:     "Write one configuration value",
				Arguments: []cli.Argument{&cli.StringArg{Name: "key"}, &cli.StringArg{Name: "value"}},
				Flags:     []cli.Flag{configFlag()},
				Action:    r.ConfigSet,
			},
		},
	}
}

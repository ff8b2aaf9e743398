package main

import (
	"context"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ConfigGet reads one value from the cache's config store.
func (r *Runner) ConfigGet(ctx context.Context, cmd *cli.Command) error {
	key, err := requireArg(cmd, "key")
	if err != nil {
		return err
	}
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewGetConfigValue(key))
		if err != nil {
			return err
		}
		value := resp.(records.ConfigValue)
		return r.writePlain("%s\n", value.Value)
	})
}

// ConfigSet writes one value to the cache's config store.
func (r *Runner) ConfigSet(ctx context.Context, cmd *cli.Command) error {
	key, err := requireArg(cmd, "key")
	if err != nil {
		return err
	}
	value, err := requireArg(cmd, "value")
	if err != nil {
		return err
	}
	return r.withEngine(cmd, func(eng *engine.Engine, config *shared.Config) error {
		resp, err := r.do(eng, tasks.NewSetConfigValue(key, value))
		if err != nil {
			return err
		}
		stored := resp.(records.ConfigValue)
		return r.writePlain("%s = %s\n", stored.Key, stored.Value)
	})
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gerrymanoim/to-listen/internal/tasks"
	"github.com/gerrymanoim/to-listen/internal/ui"
	"github.com/urfave/cli/v3"
)

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Run one scheduled sync tick across all eligible users",
		Action: r.Sync,
	}
}

func processCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Run a single user's listen sync from a trigger payload",
		ArgsUsage: "<base64-payload>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "payload"},
		},
		Action: r.Process,
	}
}

// batchWorker builds the sync worker with the batch refresh skew
// applied to the token manager.
func (r *Runner) batchWorker(d *deps) *tasks.Worker {
	skew := time.Duration(r.config.Sync.RefreshSkewSecs) * time.Second
	return tasks.NewWorker(d.store, d.manager.WithSkew(skew), d.client, r.logger)
}

// Sync runs one scheduler tick and prints the per-user outcomes.
// Individual failures are reported, not fatal.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	d, err := r.buildDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	scheduler := tasks.NewScheduler(d.store, r.batchWorker(d), r.config.Sync.DispatchPerSecond, r.logger)
	results, err := scheduler.Run(ctx, nil)
	if err != nil {
		return err
	}

	return r.writePlain("%s", ui.RenderSyncSummary(results))
}

// Process handles one pub/sub style trigger message carrying a
// base64-encoded user id.
func (r *Runner) Process(ctx context.Context, cmd *cli.Command) error {
	uid, err := tasks.DecodeTriggerPayload(cmd.StringArg("payload"))
	if err != nil {
		return err
	}

	d, err := r.buildDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	result := r.batchWorker(d).ProcessListens(ctx, uid, nil)
	if result.Err != nil {
		return fmt.Errorf("sync failed for %s: %w", uid, result.Err)
	}

	if result.Skipped {
		return r.writePlain("- %s: skipped (no playlist)\n", uid)
	}
	return r.writePlain("✓ %s: removed %d tracks\n", uid, result.Deleted)
}

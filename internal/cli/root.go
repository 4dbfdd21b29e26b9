// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/releasekeeper/internal/logging"
)

const usage = `Usage: releasekeeper [--config FILE] <command> [arguments]

Commands:
  update <version>   Update to <version>, rolling back on failure (alias: deploy)
  check              Show the current and latest available versions
  list               List version tags, most recent last
  version            Show the current version
  rollback [path]    Roll back to the backup at path; without a path, list backups
  history [count]    Show recent update and rollback runs (default: 20)`

// handlers maps every command name, aliases included, to its Handler.
var handlers = map[string]Handler{
	"update":   runUpdate,
	"deploy":   runUpdate,
	"check":    runCheck,
	"list":     runList,
	"version":  runVersion,
	"rollback": runRollback,
	"history":  runHistory,
}

var commandTable = []struct {
	use     string
	aliases []string
	short   string
}{
	{"update <version>", []string{"deploy"}, "Update to a version, rolling back on failure"},
	{"check", nil, "Show the current and latest available versions"},
	{"list", nil, "List version tags, most recent last"},
	{"version", nil, "Show the current version"},
	{"rollback [path]", nil, "Roll back to a backup, or list backups"},
	{"history [count]", nil, "Show recent update and rollback runs"},
}

func newRootCommand(load Loader, res *Result) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "releasekeeper",
		Short:         "Versioned deployment with safe rollback",
		Long:          usage,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			*res = failure("%s", usage)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $RELEASEKEEPER_CONFIG or ./releasekeeper.yaml)")

	for _, entry := range commandTable {
		sub := &cobra.Command{
			Use:     entry.use,
			Aliases: entry.aliases,
			Short:   entry.short,
			Args:    cobra.ArbitraryArgs,
			Run: func(cmd *cobra.Command, args []string) {
				*res = dispatch(cmd, load, configPath, args)
			},
		}
		root.AddCommand(sub)
	}
	return root
}

// dispatch builds the environment and runs the handler registered for
// the invoked name.
func dispatch(cmd *cobra.Command, load Loader, configPath string, args []string) Result {
	name := cmd.CalledAs()
	handler, found := handlers[name]
	if !found {
		return failure("%s", usage)
	}

	ctx := cmd.Context()
	env, err := load(ctx, configPath)
	if err != nil {
		return failure("%v", err)
	}
	defer func() {
		if err := env.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	return handler(ctx, env, args)
}

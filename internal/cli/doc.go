// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

/*
Package cli implements the releasekeeper command line.

Commands are dispatched through an explicit name to Handler map. A Handler
returns a Result holding the exit code and the text printed to standard
output, so every command can be exercised without spawning a process.
Cobra parses flags and arguments.

# Commands

	update <version>   run the full update workflow (alias: deploy)
	check              report the current and latest available versions
	list               print version tags, most recent last
	version            print the current version
	rollback [path]    without a path list backups and exit 1, with a path roll back
	history            print recent runs from the journal

Anything else prints usage and exits 1.

# Wiring

Load reads the configuration, initializes logging and builds every
component from it. Env.Close flushes the metrics textfile and releases the
journal, the event connection and the run log.
*/
package cli

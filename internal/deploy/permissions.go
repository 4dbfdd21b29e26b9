// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package deploy

import (
	"context"

	"github.com/tomtom215/releasekeeper/internal/shell"
)

// Permissions is the ownership and mode reapplied to a deployed tree.
// Empty fields are left alone.
type Permissions struct {
	Owner string
	Group string

	// Mode is a chmod mode, symbolic or octal, e.g. "u=rwX,g=rX,o=".
	Mode string
}

// Apply runs chown and chmod recursively on dir.
func (p Permissions) Apply(ctx context.Context, r shell.Runner, dir string) error {
	if owner := p.ownerSpec(); owner != "" {
		if _, err := r.Run(ctx, shell.Command{Name: "chown", Args: []string{"-R", owner, dir}}); err != nil {
			return err
		}
	}
	if p.Mode != "" {
		if _, err := r.Run(ctx, shell.Command{Name: "chmod", Args: []string{"-R", p.Mode, dir}}); err != nil {
			return err
		}
	}
	return nil
}

func (p Permissions) ownerSpec() string {
	switch {
	case p.Owner != "" && p.Group != "":
		return p.Owner + ":" + p.Group
	case p.Owner != "":
		return p.Owner
	case p.Group != "":
		return ":" + p.Group
	default:
		return ""
	}
}

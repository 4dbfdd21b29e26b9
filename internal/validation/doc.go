// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package validation provides struct validation using go-playground/validator v10.
//
// It wraps a thread-safe singleton validator with the custom rules the
// configuration needs and translates failures into messages that name the
// configuration key rather than the Go field:
//
//	type BackupConfig struct {
//	    Dir       string `koanf:"dir" validate:"required,abspath"`
//	    Retention int    `koanf:"retention" validate:"min=1"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    // "backup.retention must be at least 1"
//	    return err
//	}
//
// # Custom Rules
//
//   - abspath: an absolute filesystem path
//   - version: a strict MAJOR.MINOR.PATCH release version
//   - filemode: a chmod mode, octal ("0750") or symbolic ("u=rwX,g=rX,o=")
package validation

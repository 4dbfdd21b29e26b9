// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package build turns a fetched source tree into a runnable artifact by
// dispatching to the project's own build tool.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/tomtom215/releasekeeper/internal/logging"
	"github.com/tomtom215/releasekeeper/internal/shell"
)

// ErrBuildFailed is returned when the build tool exits unsuccessfully.
var ErrBuildFailed = errors.New("build failed")

// Handler builds the project rooted at dir.
type Handler func(ctx context.Context, r shell.Runner, dir string) error

// Rule pairs a marker predicate with the handler that builds the project.
type Rule struct {
	Name    string
	Matches func(dir string) bool
	Build   Handler
}

// DefaultRules is evaluated in order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "npm", Matches: hasFile("package.json"), Build: npmBuild},
		{Name: "maven", Matches: hasFile("pom.xml"), Build: mavenBuild},
		{Name: "gradle", Matches: hasAnyFile("build.gradle", "build.gradle.kts"), Build: gradleBuild},
		{Name: "go", Matches: hasFile("go.mod"), Build: goBuild},
	}
}

// Builder runs the first matching rule.
type Builder struct {
	runner shell.Runner
	rules  []Rule
}

// New creates a Builder with DefaultRules.
func New(runner shell.Runner) *Builder {
	return &Builder{runner: runner, rules: DefaultRules()}
}

// NewWithRules creates a Builder with a custom rule list.
func NewWithRules(runner shell.Runner, rules []Rule) *Builder {
	return &Builder{runner: runner, rules: rules}
}

// Detect returns the rule that would build dir, or nil.
func (b *Builder) Detect(dir string) *Rule {
	for i := range b.rules {
		if b.rules[i].Matches(dir) {
			return &b.rules[i]
		}
	}
	return nil
}

// Build builds the project at dir. A tree without any known marker has
// nothing to build and succeeds.
func (b *Builder) Build(ctx context.Context, dir string) error {
	log := logging.Ctx(ctx)

	rule := b.Detect(dir)
	if rule == nil {
		log.Info().Str("dir", dir).Msg("No build descriptor found, nothing to build")
		return nil
	}

	log.Info().Str("dir", dir).Str("tool", rule.Name).Msg("Building")
	if err := rule.Build(ctx, b.runner, dir); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuildFailed, rule.Name, err)
	}
	return nil
}

func hasFile(name string) func(string) bool {
	return func(dir string) bool {
		return shell.Exists(filepath.Join(dir, name))
	}
}

func hasAnyFile(names ...string) func(string) bool {
	return func(dir string) bool {
		for _, name := range names {
			if shell.Exists(filepath.Join(dir, name)) {
				return true
			}
		}
		return false
	}
}

func run(ctx context.Context, r shell.Runner, dir, name string, args ...string) error {
	_, err := r.Run(ctx, shell.Command{Name: name, Args: args, Dir: dir})
	return err
}

func npmBuild(ctx context.Context, r shell.Runner, dir string) error {
	if err := run(ctx, r, dir, "npm", "ci"); err != nil {
		return err
	}
	return run(ctx, r, dir, "npm", "run", "build", "--if-present")
}

func mavenBuild(ctx context.Context, r shell.Runner, dir string) error {
	return run(ctx, r, dir, "mvn", "-q", "-DskipTests", "package")
}

func gradleBuild(ctx context.Context, r shell.Runner, dir string) error {
	if shell.Exists(filepath.Join(dir, "gradlew")) {
		return run(ctx, r, dir, "./gradlew", "build", "-x", "test")
	}
	return run(ctx, r, dir, "gradle", "build", "-x", "test")
}

func goBuild(ctx context.Context, r shell.Runner, dir string) error {
	return run(ctx, r, dir, "go", "build", "./...")
}

// Package git runs the few git queries plexify needs: operator identity from
// git config and the files a session touched.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// run executes git with args in dir and returns trimmed stdout.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Config returns the value of key (e.g. "user.email") as seen from dir.
// An unset key is an error.
func Config(ctx context.Context, dir, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("config key required")
	}
	return run(ctx, dir, "config", "--get", key)
}

// Root returns the top-level directory of the work tree containing dir.
func Root(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, "rev-parse", "--show-toplevel")
}

// ChangedFiles lists paths, relative to the work tree root, that differ from
// base (committed since base, staged or unstaged) plus untracked files that are
// not ignored. base defaults to HEAD. The result is sorted and deduplicated.
func ChangedFiles(ctx context.Context, dir, base string) ([]string, error) {
	if base == "" {
		base = "HEAD"
	}
	root, err := Root(ctx, dir)
	if err != nil {
		return nil, err
	}
	diff, err := run(ctx, root, "diff", "--name-only", base)
	if err != nil {
		return nil, err
	}
	untracked, err := run(ctx, root, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(diff+"\n"+untracked, "\n") {
		p := strings.TrimSpace(line)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

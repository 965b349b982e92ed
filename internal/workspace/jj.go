package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// JJDriver shells out to the jj (Jujutsu) CLI. Sessions map onto jj
// workspaces: Create is `jj workspace add`, Forget is `jj workspace forget`,
// and the queue's bookmark terminology (spec uses "push(bookmark)") mirrors
// jj's own vocabulary for named, movable refs.
type JJDriver struct {
	// Root is the primary jj repository's working-copy path. Secondary
	// workspaces are created as siblings under WorkspacesRoot and attached
	// to this repo's operation log.
	Root string
	// WorkspacesRoot is the parent directory new workspaces are created
	// under (spec §6: "workspaces/<name>/").
	WorkspacesRoot string
	// Bin overrides the jj binary name/path; defaults to "jj" on PATH.
	Bin string
}

func (d *JJDriver) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return "jj"
}

func (d *JJDriver) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("jj %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (d *JJDriver) workspacePath(name string) string {
	return filepath.Join(d.WorkspacesRoot, name)
}

// Create runs `jj workspace add <path>`, optionally pinned to parent's tip
// via `--revision`. jj itself rejects a duplicate workspace name, which
// Create maps onto ErrAlreadyExists.
func (d *JJDriver) Create(ctx context.Context, name string, parent string) (Handle, error) {
	path := d.workspacePath(name)
	if _, err := os.Stat(path); err == nil {
		return Handle{}, fmt.Errorf("%s: %w", name, ErrAlreadyExists)
	}

	args := []string{"workspace", "add", "--name", name, path}
	if parent != "" {
		args = append(args, "--revision", parent+"@")
	}
	if _, err := d.run(ctx, d.Root, args...); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return Handle{}, fmt.Errorf("%s: %w", name, ErrAlreadyExists)
		}
		return Handle{}, err
	}
	return Handle{Name: name, Path: path}, nil
}

// Forget runs `jj workspace forget <name>` from the primary repo root.
func (d *JJDriver) Forget(ctx context.Context, name string) error {
	_, err := d.run(ctx, d.Root, "workspace", "forget", name)
	return err
}

// RemoveDir deletes the workspace's directory. Tolerant of it already being gone.
func (d *JJDriver) RemoveDir(ctx context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove workspace directory %s: %w", path, err)
	}
	return nil
}

// Status reports jj's notion of the working copy's bookmark, dirtiness, and
// divergence from trunk via `jj log`/`jj diff --stat` style plumbing
// commands, parsed from jj's `--no-graph -T` templated output.
func (d *JJDriver) Status(ctx context.Context, name string) (Status, error) {
	path := d.workspacePath(name)
	out, err := d.run(ctx, path, "log", "--no-graph", "-r", "@", "-T",
		`bookmarks ++ "\n" ++ if(empty, "clean", "dirty")`)
	if err != nil {
		return Status{}, err
	}
	lines := strings.SplitN(strings.TrimSpace(out), "\n", 2)
	status := Status{}
	if len(lines) > 0 {
		status.Branch = strings.TrimSuffix(lines[0], "*")
	}
	if len(lines) > 1 {
		status.Dirty = strings.TrimSpace(lines[1]) != "clean"
	}
	ahead, behind, err := d.aheadBehind(ctx, path)
	if err != nil {
		return status, err
	}
	status.Ahead, status.Behind = ahead, behind
	return status, nil
}

func (d *JJDriver) aheadBehind(ctx context.Context, path string) (int, int, error) {
	out, err := d.run(ctx, path, "log", "--no-graph", "-r", "@::trunk() & ~trunk()", "-T", `"x\n"`)
	if err != nil {
		return 0, 0, nil // divergence reporting is best-effort, not load-bearing
	}
	ahead := strings.Count(out, "x\n")
	out, err = d.run(ctx, path, "log", "--no-graph", "-r", "trunk() & ~(@::trunk())", "-T", `"x\n"`)
	if err != nil {
		return ahead, 0, nil
	}
	behind := strings.Count(out, "x\n")
	return ahead, behind, nil
}

// Rebase runs `jj rebase -d <onto>` inside the workspace. jj surfaces
// conflicts as a non-fatal exit with conflict markers in the working copy,
// not a nonzero exit code, so Rebase inspects `jj log -r @ --template` for
// the `conflict` keyword rather than relying on the process exit status.
func (d *JJDriver) Rebase(ctx context.Context, name string, onto string) (RebaseOutcome, error) {
	path := d.workspacePath(name)
	if _, err := d.run(ctx, path, "rebase", "-d", onto); err != nil {
		return RebaseOutcome{}, err
	}
	return d.checkConflict(ctx, path, "rebase")
}

// Merge runs `jj new` to create a merge commit of source and into, then
// advances into's bookmark to it.
func (d *JJDriver) Merge(ctx context.Context, source string, into string) (MergeOutcome, error) {
	path := d.workspacePath(source)
	if _, err := d.run(ctx, path, "new", into, "@", "-m", fmt.Sprintf("merge %s into %s", source, into)); err != nil {
		return MergeOutcome{}, err
	}
	outcome, err := d.checkConflict(ctx, path, "merge")
	if err != nil {
		return MergeOutcome{}, err
	}
	if outcome.Conflict != nil {
		return MergeOutcome{Conflict: outcome.Conflict}, nil
	}
	if _, err := d.run(ctx, path, "bookmark", "set", into, "-r", "@"); err != nil {
		return MergeOutcome{}, err
	}
	return MergeOutcome{Clean: true}, nil
}

func (d *JJDriver) checkConflict(ctx context.Context, path, step string) (RebaseOutcome, error) {
	out, err := d.run(ctx, path, "log", "--no-graph", "-r", "@", "-T", `if(conflict, "conflict", "clean")`)
	if err != nil {
		return RebaseOutcome{}, err
	}
	if strings.TrimSpace(out) == "conflict" {
		files, _ := d.run(ctx, path, "resolve", "--list")
		return RebaseOutcome{Conflict: &ConflictDetails{
			Type:    step + "_conflict",
			Files:   strings.Fields(files),
			Summary: strings.TrimSpace(files),
		}}, nil
	}
	return RebaseOutcome{Clean: true}, nil
}

// Push runs `jj git push --bookmark <bookmark>`.
func (d *JJDriver) Push(ctx context.Context, bookmark string) error {
	_, err := d.run(ctx, d.Root, "git", "push", "--bookmark", bookmark)
	return err
}

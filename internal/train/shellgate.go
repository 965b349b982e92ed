package train

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ShellGate runs an operator-supplied command inside a workspace directory
// and treats a zero exit status as pass, the way JJDriver shells out to jj
// rather than parsing in-process state. This is the one gate kind zjj ships
// with: the exact gate set is declared externally (spec §9 Open Questions),
// so a shell command is the most general "externally declared" predicate
// available without the core knowing anything about test runners or linters.
type ShellGate struct {
	GateName       string
	Command        string
	Args           []string
	WorkspacesRoot string
}

func (g ShellGate) Name() string { return g.GateName }

// Check runs Command with cmd.Dir set to the workspace's directory. A
// nonzero exit is a failed gate (not a Check error); only a failure to even
// start the command is reported as an error.
func (g ShellGate) Check(ctx context.Context, workspace string) (bool, string, error) {
	cmd := exec.CommandContext(ctx, g.Command, g.Args...)
	cmd.Dir = filepath.Join(g.WorkspacesRoot, workspace)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	summary := strings.TrimSpace(out.String())
	var exitErr *exec.ExitError
	if err == nil {
		return true, summary, nil
	}
	if errors.As(err, &exitErr) {
		return false, summary, nil
	}
	return false, summary, fmt.Errorf("run gate %s: %w", g.GateName, err)
}

package demwb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"
)

// maxOutput is the number of trailing bytes of a failed command's output kept
// in its error.
const maxOutput = 2048

// ToolError is returned when an external tool fails.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// A Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands as child processes. Processes are killed when ctx
// is cancelled.
type ExecRunner struct {
	Logger *zap.Logger
	Env    []string
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := loggerOrNop(r.Logger)
	logger.Debug("run", zap.String("command", shellescape.QuoteCommand(append([]string{name}, args...))))
	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &ToolError{Tool: name, Args: args, Output: tail(out.String()), Err: err}
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		i := len(s) - maxOutput
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
		s = "..." + s[i:]
	}
	return s
}

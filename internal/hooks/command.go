package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/triage/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs entry.Command through sh with the
// payload as JSON on stdin and TRIAGE_EVENT set in the environment.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := defaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "TRIAGE_EVENT="+p.Event)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(out.String())
			if len(msg) > 256 {
				msg = msg[:256]
			}
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %q timed out after %s", entry.Command, timeout)
			}
			return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
		}
		return nil
	}
}

// RegisterConfig binds the shell hooks from cfg. Each handler is named after
// its command.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) error {
	bind := func(event string, entries []config.HookEntry) error {
		for _, entry := range entries {
			if err := m.On(event, entry.Command, CommandHandler(entry)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := bind(EventRunFinished, cfg.RunFinished); err != nil {
		return err
	}
	return bind(EventAfterTriage, cfg.AfterTriage)
}

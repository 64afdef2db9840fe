package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
)

// Subprocess invokes the bridge script once per call:
//
//	python3 bridge.py -i INPUT -o OUTPUT -s SCALE -t TILE --model M --json
//
// The reply is a single JSON object on stdout; failures carry a typed
// exit code. One exec per call keeps the boundary crash-isolated: a dead
// bridge process fails exactly one page's stage.
type Subprocess struct {
	command     string
	script      string
	maxAttempts int
	logger      *slog.Logger
}

// SubprocessConfig configures a subprocess invoker.
type SubprocessConfig struct {
	Command     string // e.g. "python3"
	Script      string // bridge script path
	MaxAttempts int    // retry budget per call (default 2)
	Logger      *slog.Logger
}

// NewSubprocess creates a subprocess invoker.
func NewSubprocess(cfg SubprocessConfig) (*Subprocess, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidArgs)
	}
	if cfg.Script == "" {
		return nil, fmt.Errorf("%w: script path is required", ErrInvalidArgs)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}

	return &Subprocess{
		command:     cfg.Command,
		script:      cfg.Script,
		maxAttempts: attempts,
		logger:      logger.With("bridge", "subprocess"),
	}, nil
}

// Invoke runs the bridge once for the request, retrying transient
// failures up to the configured attempt budget. Context expiry aborts
// the running process and is returned as-is so callers can treat a
// timeout like any other stage failure.
func (s *Subprocess) Invoke(ctx context.Context, req Request) (*Response, error) {
	var resp *Response

	err := retry.Do(
		func() error {
			r, err := s.invokeOnce(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.maxAttempts)),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return transient(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("bridge call failed, retrying",
				"attempt", n+1, "input", req.Input, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Subprocess) invokeOnce(ctx context.Context, req Request) (*Response, error) {
	args := []string{
		s.script,
		"-i", req.Input,
		"-o", req.Output,
		"-s", strconv.Itoa(req.Scale),
		"-t", strconv.Itoa(req.Tile),
		"--json",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("bridge call aborted after %s: %w", elapsed.Round(time.Millisecond), ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			// The script reports structured errors on stdout even when
			// exiting nonzero; prefer its message over the raw code.
			if resp, err := decodeResponse(stdout.Bytes()); err == nil && resp.Error != "" {
				return nil, fmt.Errorf("%w: %s", errForExit(code), resp.Error)
			}
			return nil, fmt.Errorf("%w: exit code %d: %s", errForExit(code), code, firstLine(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrBridge, runErr)
	}

	resp, err := decodeResponse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", errForExit(resp.ExitCode), resp.Error)
	}

	s.logger.Debug("bridge call completed", "input", req.Input, "elapsed", elapsed)
	return resp, nil
}

// decodeResponse parses and schema-validates a bridge reply.
func decodeResponse(raw []byte) (*Response, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrBadResponse, err)
	}
	if err := validateResponse(doc); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &resp, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

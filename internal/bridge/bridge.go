// Package bridge is the boundary to the external AI services (super
// resolution, and any future model-backed stage). A stage talks to a
// single capability interface; whether the call crosses into a spawned
// subprocess or a managed container is a transport detail chosen by
// configuration, so the orchestrator's fault isolation is identical for
// pure computation and external calls.
package bridge

import (
	"context"
	"errors"
)

// Exit codes shared with the bridge script.
const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitInvalidArgs   = 2
	ExitInputNotFound = 3
	ExitOutputError   = 4
	ExitGPUError      = 5
	ExitOOM           = 6
)

// Sentinel errors mapped from bridge exit codes.
var (
	ErrBridge        = errors.New("bridge error")
	ErrInvalidArgs   = errors.New("bridge rejected arguments")
	ErrInputNotFound = errors.New("bridge input not found")
	ErrOutputError   = errors.New("bridge could not write output")
	ErrGPU           = errors.New("bridge GPU error")
	ErrOOM           = errors.New("bridge out of memory")
	ErrBadResponse   = errors.New("bridge response failed validation")
)

// errForExit maps a bridge exit code to its sentinel.
func errForExit(code int) error {
	switch code {
	case ExitInvalidArgs:
		return ErrInvalidArgs
	case ExitInputNotFound:
		return ErrInputNotFound
	case ExitOutputError:
		return ErrOutputError
	case ExitGPUError:
		return ErrGPU
	case ExitOOM:
		return ErrOOM
	default:
		return ErrBridge
	}
}

// transient reports whether a failed call is worth retrying. Argument and
// path errors will fail the same way every time; GPU hiccups and memory
// pressure often clear.
func transient(err error) bool {
	return errors.Is(err, ErrGPU) || errors.Is(err, ErrOOM) || errors.Is(err, ErrBridge)
}

// Request describes one bridge invocation. The input and output are file
// paths: the image buffer crosses the boundary on disk, never in memory.
type Request struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Scale  int    `json:"scale"`
	Tile   int    `json:"tile"`
	Model  string `json:"model"`
}

// Response is the bridge's JSON reply. Responses are schema-validated
// before being trusted.
type Response struct {
	OK        bool    `json:"ok"`
	Output    string  `json:"output,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
	ExitCode  int     `json:"exit_code,omitempty"`
}

// Invoker is the synchronous capability interface injected into stages
// that depend on an external model. Invoke blocks until the service
// replies or ctx expires; a timeout surfaces as an ordinary error and is
// handled by stage fault isolation like any other failure.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// Service invokes a long-lived bridge service over HTTP. The service is
// typically a container managed by ServiceManager; request paths must be
// visible to both sides (the manager mounts the bindery home at /work).
type Service struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	logger      *slog.Logger
}

// ServiceInvokerConfig configures a Service invoker.
type ServiceInvokerConfig struct {
	// BaseURL is the service address, e.g. "http://localhost:9482".
	BaseURL string

	// MaxAttempts bounds retries of a failed call (default 2).
	MaxAttempts int

	Logger *slog.Logger
}

// NewService creates an HTTP invoker for a running bridge service.
func NewService(cfg ServiceInvokerConfig) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidArgs)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}

	return &Service{
		baseURL: cfg.BaseURL,
		// Per-call deadlines come from ctx; the client timeout is a
		// backstop against a wedged connection.
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxAttempts: attempts,
		logger:      logger.With("bridge", "service"),
	}, nil
}

// Invoke posts the request to the service and decodes the validated reply.
func (s *Service) Invoke(ctx context.Context, req Request) (*Response, error) {
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
			s.logger.Warn("bridge request failed, retrying",
				"attempt", n+1, "input", req.Input, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) invokeOnce(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upscale", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("bridge call aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", errForExit(resp.ExitCode), resp.Error)
	}

	s.logger.Debug("bridge request completed", "input", req.Input, "elapsed", time.Since(start))
	return resp, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// Command describes how to launch a locator service process.
type Command struct {
	Binary string
	Args   []string
	Env    []string
}

// Process is a running locator service with a connected Client.
type Process struct {
	*Client

	cmd    *exec.Cmd
	logger *slog.Logger
}

// Start launches the service and connects a Client to its stdin and
// stdout. The service's stderr is forwarded to ours. Env is appended to
// the inherited environment.
func Start(ctx context.Context, logger *slog.Logger, c Command) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &BoundaryError{Op: "start", Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &BoundaryError{Op: "start", Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	logger.InfoContext(ctx, "starting locator service",
		slog.String("binary", c.Binary),
		slog.Any("args", c.Args),
	)

	if err := cmd.Start(); err != nil {
		return nil, &BoundaryError{Op: "start", Err: err}
	}

	return &Process{
		Client: NewClient(stdout, stdin),
		cmd:    cmd,
		logger: logger,
	}, nil
}

// Close closes the service's stdin and waits for it to exit.
func (p *Process) Close() error {
	start := time.Now()

	if err := p.Client.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("failed to close service stdin",
			slog.String("error", err.Error()),
		)
	}

	if err := p.cmd.Wait(); err != nil {
		return &BoundaryError{Op: "stop", Err: err}
	}

	p.logger.Info("locator service stopped",
		slog.Duration("shutdown", time.Since(start)),
	)

	return nil
}

// Pipe connects a Client to an in-process Server over a pair of pipes. The
// returned function closes the client and waits for the server to finish.
func Pipe(ctx context.Context, logger *slog.Logger) (*Client, func() error) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	srv := NewServer(reqR, respW, logger)

	var g errgroup.Group
	g.Go(func() error {
		err := srv.Serve(ctx)
		respW.CloseWithError(err)
		reqR.Close()

		return err
	})

	client := NewClient(respR, reqW)

	return client, func() error {
		if err := client.Close(); err != nil {
			return err
		}

		return g.Wait()
	}
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/weiihann/bisectbench/repr"
	"github.com/weiihann/bisectbench/service"
)

// Harness times operations and prints one line per timed call.
type Harness struct {
	out    io.Writer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// New creates a Harness printing measure lines to out.
func New(out io.Writer, logger *slog.Logger, opts ...Option) *Harness {
	h := &Harness{
		out:    out,
		now:    time.Now,
		logger: logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Measure runs op once, reading the clock immediately before and after
// it, and prints "<elapsed>ms to run <name>". The result of op is returned
// unchanged. When op fails nothing is printed.
func Measure[R any](h *Harness, name string, op func() (R, error)) (R, error) {
	r, _, err := measure(h, name, op)

	return r, err
}

func measure[R any](h *Harness, name string, op func() (R, error)) (R, time.Duration, error) {
	start := h.now()
	r, err := op()
	elapsed := h.now().Sub(start)

	if err != nil {
		return r, elapsed, fmt.Errorf("%s: %w", name, err)
	}

	fmt.Fprintf(h.out, "%7.1fms to run %s\n", Milliseconds(elapsed), name)

	return r, elapsed, nil
}

// Milliseconds converts d to milliseconds rounded to one decimal.
func Milliseconds(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*10) / 10
}

// Input is the data every scenario reads. It is never modified.
type Input struct {
	// Space is the sorted sequence in its source form, a contiguous
	// buffer. Scenarios derive any other representation from it.
	Space   repr.Buffer
	Queries repr.Sequence
}

// Env carries what scenarios need besides their input. Client is nil when
// no locator service is running.
type Env struct {
	Harness *Harness
	Client  *service.Client
}

// Run executes scenarios in order. The first failure aborts the run; lines
// printed for earlier scenarios stay valid but no result is returned for
// the failed one.
func (h *Harness) Run(
	ctx context.Context,
	client *service.Client,
	in Input,
	scenarios []Scenario,
) ([]ScenarioResult, error) {
	env := Env{Harness: h, Client: client}
	results := make([]ScenarioResult, 0, len(scenarios))

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if sc.Remote && client == nil {
			return results, &service.BoundaryError{
				Op:  sc.Name,
				Err: fmt.Errorf("locator service is not running"),
			}
		}

		res, err := h.runScenario(ctx, env, in, sc)
		if err != nil {
			return results, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}

		results = append(results, res)
	}

	return results, nil
}

func (h *Harness) runScenario(ctx context.Context, env Env, in Input, sc Scenario) (ScenarioResult, error) {
	logger := h.logger.With(slog.String("scenario", sc.Name))
	logger.DebugContext(ctx, "preparing scenario")

	op, cleanup, err := sc.Setup(env, in)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("setup: %w", err)
	}

	if cleanup != nil {
		defer cleanup()
	}

	indices, elapsed, err := measure(h, sc.Name, op)
	if err != nil {
		return ScenarioResult{}, err
	}

	logger.DebugContext(ctx, "scenario finished",
		slog.Duration("elapsed", elapsed),
		slog.Int("queries", len(indices)),
	)

	return ScenarioResult{
		Name:      sc.Name,
		ElapsedMs: Milliseconds(elapsed),
		Indices:   indices,
	}, nil
}

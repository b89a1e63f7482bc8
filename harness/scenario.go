package harness

import (
	"fmt"
	"strings"

	"github.com/weiihann/bisectbench/backend"
	"github.com/weiihann/bisectbench/repr"
)

// Op is the timed part of a scenario.
type Op func() ([]int, error)

// Scenario pairs a representation with a backend. Setup runs outside the
// timed region and returns the operation to time plus an optional cleanup.
// Conversions that belong to the measured cost happen inside Op.
type Scenario struct {
	Name   string
	Remote bool
	Setup  func(env Env, in Input) (Op, func(), error)
}

// DefaultScenarios returns the fixed, ordered scenario registry.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name: "in_process_on_sequence",
			Setup: func(_ Env, in Input) (Op, func(), error) {
				l := backend.NewInProcess(repr.KindSequence)

				return func() ([]int, error) {
					seq, err := repr.ToSequence(in.Space)
					if err != nil {
						return nil, err
					}

					return l.LocateBatch(seq, in.Queries)
				}, nil, nil
			},
		},
		{
			Name: "in_process_on_buffer",
			Setup: func(_ Env, in Input) (Op, func(), error) {
				l := backend.NewInProcess(repr.KindBuffer)

				return func() ([]int, error) {
					return l.LocateBatch(in.Space, in.Queries)
				}, nil, nil
			},
		},
		{
			Name:   "remote_sequence_copy",
			Remote: true,
			Setup: func(env Env, in Input) (Op, func(), error) {
				l := backend.NewRemoteSequence(env.Client)

				return func() ([]int, error) {
					seq, err := repr.ToSequence(in.Space)
					if err != nil {
						return nil, err
					}

					return l.LocateBatch(seq, in.Queries)
				}, nil, nil
			},
		},
		{
			Name:   "remote_buffer_view",
			Remote: true,
			Setup: func(env Env, in Input) (Op, func(), error) {
				l := backend.NewRemoteBuffer(env.Client)

				return func() ([]int, error) {
					return l.LocateBatch(in.Space, in.Queries)
				}, nil, nil
			},
		},
		{
			Name:   "remote_columnar_prebuilt",
			Remote: true,
			Setup: func(env Env, in Input) (Op, func(), error) {
				l := backend.NewRemoteColumnar(env.Client)

				space, queries, err := toColumnar(in)
				if err != nil {
					return nil, nil, err
				}

				release := func() {
					space.Release()
					queries.Release()
				}

				return func() ([]int, error) {
					return l.LocateBatch(space, queries)
				}, release, nil
			},
		},
		{
			Name:   "run_remote_columnar_batch",
			Remote: true,
			Setup: func(env Env, in Input) (Op, func(), error) {
				l := backend.NewRemoteColumnar(env.Client)

				return func() ([]int, error) {
					space, queries, err := toColumnar(in)
					if err != nil {
						return nil, err
					}
					defer space.Release()
					defer queries.Release()

					return Measure(env.Harness, "remote_columnar_batch", func() ([]int, error) {
						return l.LocateBatch(space, queries)
					})
				}, nil, nil
			},
		},
	}
}

func toColumnar(in Input) (*repr.Columnar, *repr.Columnar, error) {
	space, err := repr.ToColumnar(in.Space)
	if err != nil {
		return nil, nil, err
	}

	qbuf, err := repr.ToBuffer(in.Queries)
	if err != nil {
		space.Release()

		return nil, nil, err
	}

	queries, err := repr.ToColumnar(qbuf)
	if err != nil {
		space.Release()

		return nil, nil, err
	}

	return space, queries, nil
}

// Names returns the scenario names in registry order.
func Names(scenarios []Scenario) []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}

	return names
}

// Select narrows scenarios to the given names, keeping registry order. An
// empty names list selects everything.
func Select(scenarios []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	selected := make([]Scenario, 0, len(names))
	for _, sc := range scenarios {
		if want[sc.Name] {
			selected = append(selected, sc)
			delete(want, sc.Name)
		}
	}

	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				unknown = append(unknown, n)
			}
		}

		return nil, fmt.Errorf("unknown scenarios %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(Names(scenarios), ", "))
	}

	return selected, nil
}

// NeedsService reports whether any scenario crosses the boundary.
func NeedsService(scenarios []Scenario) bool {
	for _, sc := range scenarios {
		if sc.Remote {
			return true
		}
	}

	return false
}

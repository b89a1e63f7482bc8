// Command locatord serves interval-location requests over stdin/stdout. It is
// the out-of-process side of the bisectbench remote scenarios and is started
// by the benchmark, never by hand.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/weiihann/bisectbench/service"
)

func main() {
	var (
		level    slog.LevelVar
		logLevel string
	)

	// stdout carries protocol frames; all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &level,
	})).With(
		slog.String("component", "locatord"),
		slog.Int("pid", os.Getpid()),
	)

	root := &cobra.Command{
		Use:           "locatord",
		Short:         "Locator service speaking the framed protocol on stdin/stdout",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return err
			}

			return service.NewServer(os.Stdin, os.Stdout, logger).Serve(cmd.Context())
		},
	}

	root.Flags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		logger.Error("locatord failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

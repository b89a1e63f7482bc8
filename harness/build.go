package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/weiihann/bisectbench/service"
)

// ServiceBinaryName is the file name of the compiled locator service.
const ServiceBinaryName = "locatord"

// ServeSubcommand runs the locator service inside the bisectbench binary.
const ServeSubcommand = "serve"

// ResolveService returns the expected locator binary path inside binDir.
func ResolveService(binDir string) string {
	return filepath.Join(binDir, ServiceBinaryName)
}

// BuildService compiles the locator service package found in srcDir into
// binDir and returns the binary path.
func BuildService(
	ctx context.Context,
	logger *slog.Logger,
	srcDir string,
	binDir string,
) (string, error) {
	// go build runs inside srcDir, so the output path must not be relative.
	absBin, err := filepath.Abs(binDir)
	if err != nil {
		return "", fmt.Errorf("resolve bin dir %s: %w", binDir, err)
	}

	binPath := ResolveService(absBin)

	logger.InfoContext(ctx, "building locator service",
		slog.String("source_dir", srcDir),
		slog.String("binary", binPath),
	)

	if err := os.MkdirAll(absBin, 0o755); err != nil {
		return "", fmt.Errorf("create bin dir %s: %w", absBin, err)
	}

	cmd := exec.CommandContext(ctx, "go", "build", "-o", binPath, ".")
	cmd.Dir = srcDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build locator service: %w", err)
	}

	if _, err := os.Stat(binPath); err != nil {
		return "", fmt.Errorf(
			"build locator service: binary not found at %s", binPath,
		)
	}

	logger.InfoContext(ctx, "locator service built",
		slog.String("binary", binPath),
	)

	return binPath, nil
}

// ServiceCommand returns the command that starts the locator service. An
// empty binPath runs the current executable's serve subcommand.
func ServiceCommand(binPath string, debug bool) (service.Command, error) {
	var args []string
	if debug {
		args = append(args, "--log-level", "debug")
	}

	if binPath != "" {
		return service.Command{Binary: binPath, Args: args}, nil
	}

	self, err := os.Executable()
	if err != nil {
		return service.Command{}, fmt.Errorf("resolve own executable: %w", err)
	}

	return service.Command{
		Binary: self,
		Args:   append([]string{ServeSubcommand}, args...),
	}, nil
}

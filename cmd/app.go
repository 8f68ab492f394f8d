package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zugferd/internal/logger"
	"zugferd/internal/platform"
	"zugferd/internal/preferences"
	"zugferd/internal/repository"
)

// app bundles what the commands work on. It is opened once per command run.
type app struct {
	dirs  platform.Dirs
	repos *repository.Set
	prefs *preferences.Store
}

func openApp(cmd *cobra.Command) (*app, error) {
	override, _ := cmd.Flags().GetString("data-dir")
	if override == "" {
		override = cfg.DataDir
	}
	dirs, err := platform.NewDesktop(override)
	if err != nil {
		return nil, err
	}

	a := &app{
		dirs:  dirs,
		repos: repository.OpenAll(dirs),
		prefs: preferences.Open(dirs),
	}

	// A fresh installation starts with the configured profile.
	if _, err := os.Stat(filepath.Join(dirs.DataDir(), preferences.FileName)); errors.Is(err, os.ErrNotExist) {
		p := a.prefs.Get()
		p.Profile = cfg.DefaultProfile
		if err := a.prefs.Replace(p); err != nil {
			return nil, err
		}
	}

	l := logger.WithFields(map[string]interface{}{
		"component":  "cmd",
		"data_dir":   dirs.DataDir(),
		"senders":    a.repos.Senders.Len(),
		"recipients": a.repos.Recipients.Len(),
		"products":   a.repos.Products.Len(),
	})
	l.Debug().Msg("Data opened")
	return a, nil
}

// createContext creates a context with the command timeout and signal handling.
func createContext(cmd *cobra.Command, log zerolog.Logger) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// openInput opens path, or stdin when path is empty or "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// writeJSON pretty-prints v to outputPath, or to the command output when
// outputPath is empty.
func writeJSON(cmd *cobra.Command, v any, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return err
	}

	if err := os.WriteFile(outputPath, append(jsonData, '\n'), 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(jsonData)).
		Msg("JSON written to file")
	return nil
}

func parseKey(arg string) (int, error) {
	key, err := strconv.Atoi(arg)
	if err != nil || key <= 0 {
		return 0, fmt.Errorf("invalid key %q: must be a positive number", arg)
	}
	return key, nil
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}

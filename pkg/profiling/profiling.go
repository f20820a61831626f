package profiling

import (
	"log/slog"

	"github.com/grafana/pyroscope-go"
)

// Settings is the profiling section of the application config.
type Settings struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// InitProfiling starts continuous profiling for the duration of the run.
// A profiler that fails to start is logged and skipped.
func InitProfiling(settings Settings, runID string) (func(), error) {
	if !settings.Enabled {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	if settings.ServerAddress == "" {
		settings.ServerAddress = "http://localhost:4040"
	}
	if settings.ApplicationName == "" {
		settings.ApplicationName = "ctaridership"
	}

	config := pyroscope.Config{
		ApplicationName: settings.ApplicationName,
		ServerAddress:   settings.ServerAddress,
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service": "ctaridership",
			"run_id":  runID,
		},
	}

	if settings.BasicAuthUser != "" && settings.BasicAuthPassword != "" {
		config.BasicAuthUser = settings.BasicAuthUser
		config.BasicAuthPassword = settings.BasicAuthPassword
	}

	profiler, err := pyroscope.Start(config)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", settings.ServerAddress, "application", settings.ApplicationName)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		} else {
			slog.Debug("Pyroscope profiler stopped")
		}
	}, nil
}

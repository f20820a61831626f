package otel

import (
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// Settings is the telemetry section of the application config.
// Field values come from OTEL_* environment variables via pkg/config.
type Settings struct {
	TracingEnabled bool
	MetricsEnabled bool
	Endpoint       string
	Protocol       string
	Headers        string
	Timeout        time.Duration
	Insecure       string
	Compression    string
	Environment    string
}

// ExporterConfig holds resolved OTLP exporter configuration for one signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// Exporter resolves the settings for a signal. A base endpoint gets the
// signal path appended for HTTP; gRPC endpoints are reduced to host:port.
func (s Settings) Exporter(signal SignalType) ExporterConfig {
	protocol := ProtocolHTTPProtobuf
	if strings.EqualFold(s.Protocol, string(ProtocolGRPC)) {
		protocol = ProtocolGRPC
	}

	endpoint := s.Endpoint
	switch {
	case endpoint == "" && protocol == ProtocolGRPC:
		endpoint = "localhost:4317"
	case endpoint == "":
		endpoint = "http://localhost:4318/v1/" + string(signal)
	case protocol == ProtocolGRPC:
		endpoint = hostPort(endpoint)
	default:
		endpoint = withSignalPath(withScheme(endpoint), signal)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	insecure := strings.HasPrefix(endpoint, "http://")
	if s.Insecure != "" {
		insecure = isTrue(s.Insecure)
	}

	return ExporterConfig{
		Endpoint:    endpoint,
		Protocol:    protocol,
		Headers:     parseHeaders(s.Headers),
		Timeout:     timeout,
		Insecure:    insecure,
		Compression: s.Compression,
	}
}

func hostPort(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return endpoint
}

func withScheme(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

func withSignalPath(endpoint string, signal SignalType) string {
	signalPath := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseHeaders parses "key1=value1,key2=value2". Values keep everything after
// the first '=' so base64 credentials survive.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		pair = strings.TrimSpace(pair)
		if idx := strings.Index(pair, "="); idx > 0 {
			key := strings.TrimSpace(pair[:idx])
			headers[key] = pair[idx+1:]
			slog.Debug("Parsed OTEL header", "key", key, "value_length", len(pair)-idx-1)
		}
	}
	return headers
}

package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	// ServiceName is the name reported by every signal
	ServiceName = "ctaridership"

	serviceNamespace = "chicago-transit"
)

// Version is set at build time via -ldflags
// e.g., go build -ldflags="-X ctaridership/pkg/otel.Version=1.2.3"
var Version = "dev"

// NewResource creates the resource shared by the trace and meter providers.
// runID ties every signal of one pipeline run together.
func NewResource(environment, runID string) (*resource.Resource, error) {
	if environment == "" {
		environment = "local"
	}

	instanceID := runID
	if instanceID == "" {
		instanceID = fmt.Sprintf("%s-%d", ServiceName, os.Getpid())
	}

	return resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceInstanceID(instanceID),
			semconv.DeploymentEnvironment(environment),
			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
		),
	)
}

package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"ctaridership/pkg/otel"
)

func TestInstrumentsUsableWithoutExporter(t *testing.T) {
	ctx := context.Background()

	// init() binds every instrument to the global no-op meter
	LoaderRowsLoaded.Add(ctx, 3, metric.WithAttributes(attribute.String("dataset", "bus")))
	PipelineStageDuration.Record(ctx, 0.25)
	SocrataResponseBodySize.Record(ctx, 1024)

	if IsEnabled() {
		t.Error("Expected metrics to be disabled before InitMetrics")
	}
}

func TestInitMetrics_Disabled(t *testing.T) {
	shutdown, err := InitMetrics(otel.Settings{}, "run-1")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	shutdown()

	if IsEnabled() {
		t.Error("Disabled settings should not install a meter provider")
	}
}

func TestRecordLastSuccessTimestamp(t *testing.T) {
	before := time.Now().Unix()
	RecordLastSuccessTimestamp()

	if got := lastSuccessTimestamp.Load(); got < before {
		t.Errorf("Expected timestamp >= %d, got %d", before, got)
	}
}

func TestRecordLayerSize(t *testing.T) {
	RecordLayerSize("combined", "bus", 12)
	RecordLayerSize("combined", "bus", 7)
	RecordLayerSize("rail", "rail", 140)

	v, ok := layerSizes.Load(layerKey{"combined", "bus"})
	if !ok || v.(int64) != 7 {
		t.Errorf("Expected latest bus size 7, got %v (present=%v)", v, ok)
	}
	v, ok = layerSizes.Load(layerKey{"rail", "rail"})
	if !ok || v.(int64) != 140 {
		t.Errorf("Expected rail size 140, got %v (present=%v)", v, ok)
	}
}

package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Socrata API Metrics
var (
	// SocrataRequestsTotal counts API requests by status
	SocrataRequestsTotal metric.Int64Counter

	// SocrataRequestDuration measures the duration of API requests
	SocrataRequestDuration metric.Float64Histogram

	// SocrataResponseBodySize measures the size of API response bodies
	SocrataResponseBodySize metric.Int64Histogram
)

// Loader Metrics
var (
	// LoaderRowsLoaded counts rows read per dataset and source
	LoaderRowsLoaded metric.Int64Counter

	// LoaderRowsDropped counts rows discarded per dataset and reason
	LoaderRowsDropped metric.Int64Counter

	// LoaderMissingCoords counts rows kept without coordinates
	LoaderMissingCoords metric.Int64Counter
)

// Pipeline Metrics
var (
	// PipelineRunsTotal counts pipeline runs by outcome
	PipelineRunsTotal metric.Int64Counter

	// PipelineStageDuration measures duration per processing stage
	PipelineStageDuration metric.Float64Histogram

	// RenderRecordsWritten counts records written to output artifacts
	RenderRecordsWritten metric.Int64Counter

	// RouteLinesParsed counts polylines extracted from route archives
	RouteLinesParsed metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	SocrataRequestsTotal, err = Meter.Int64Counter(
		"socrata.requests.total",
		metric.WithDescription("Total Socrata API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	SocrataRequestDuration, err = Meter.Float64Histogram(
		"socrata.request.duration",
		metric.WithDescription("Duration of Socrata API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return err
	}

	SocrataResponseBodySize, err = Meter.Int64Histogram(
		"socrata.response.body.size",
		metric.WithDescription("Size of Socrata response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760, 104857600), // 1KB to 100MB
	)
	if err != nil {
		return err
	}

	LoaderRowsLoaded, err = Meter.Int64Counter(
		"loader.rows.loaded",
		metric.WithDescription("Rows read per dataset"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	LoaderRowsDropped, err = Meter.Int64Counter(
		"loader.rows.dropped",
		metric.WithDescription("Rows discarded per dataset and reason"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	LoaderMissingCoords, err = Meter.Int64Counter(
		"loader.rows.missing_coords",
		metric.WithDescription("Rows retained without parseable coordinates"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	PipelineRunsTotal, err = Meter.Int64Counter(
		"pipeline.runs.total",
		metric.WithDescription("Total pipeline runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	PipelineStageDuration, err = Meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Duration per processing stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	RenderRecordsWritten, err = Meter.Int64Counter(
		"render.records.written",
		metric.WithDescription("Records written to output artifacts"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	RouteLinesParsed, err = Meter.Int64Counter(
		"kmz.lines.parsed",
		metric.WithDescription("Polylines extracted from route archives"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return err
	}

	return nil
}

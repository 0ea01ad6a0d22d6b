package signals

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"slareport/internal/descriptor"
)

// MetricQuerier sums a Cloud Monitoring metric over an interval. The three
// collector variants share one querier; tests substitute a fake.
type MetricQuerier interface {
	SumInterval(ctx context.Context, projectID, filter string, start, end time.Time) (int64, error)
}

// GCPQuerier queries Cloud Monitoring time series. Concurrency is bounded so
// a wide configuration cannot exhaust the upstream quota in one cycle.
type GCPQuerier struct {
	client *monitoring.MetricClient
	sem    *semaphore.Weighted
}

func NewGCPQuerier(ctx context.Context, maxConcurrent int64) (*GCPQuerier, error) {
	client, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create metric client: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &GCPQuerier{client: client, sem: semaphore.NewWeighted(maxConcurrent)}, nil
}

func (q *GCPQuerier) Close() error {
	return q.client.Close()
}

// SumInterval aligns the whole interval into a single bucket and sums every
// matching series. Zero series means zero observed units, not an error.
func (q *GCPQuerier) SumInterval(ctx context.Context, projectID, filter string, start, end time.Time) (int64, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer q.sem.Release(1)

	req := &monitoringpb.ListTimeSeriesRequest{
		Name:   fmt.Sprintf("projects/%s", projectID),
		Filter: filter,
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(start),
			EndTime:   timestamppb.New(end),
		},
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:    durationpb.New(end.Sub(start)),
			PerSeriesAligner:   monitoringpb.Aggregation_ALIGN_SUM,
			CrossSeriesReducer: monitoringpb.Aggregation_REDUCE_SUM,
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}

	var sum int64
	it := q.client.ListTimeSeries(ctx, req)
	for {
		ts, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		for _, point := range ts.Points {
			if point.Value == nil {
				continue
			}
			switch v := point.Value.GetValue().(type) {
			case *monitoringpb.TypedValue_Int64Value:
				sum += v.Int64Value
			case *monitoringpb.TypedValue_DoubleValue:
				sum += int64(v.DoubleValue)
			}
		}
	}
	return sum, nil
}

// classifyUpstream maps an RPC failure onto the collector error taxonomy.
// Missing or unreadable resources are permanent; everything else is assumed
// transient and left to the retry policy.
func classifyUpstream(resource string, err error) error {
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument, codes.PermissionDenied:
		return &InvalidReferenceError{Resource: resource, Err: err}
	default:
		return &UpstreamError{Err: err}
	}
}

// CloudRunCollector measures request-count availability for Cloud Run
// revisions: failed units are responses in the 5xx class.
type CloudRunCollector struct {
	Metrics MetricQuerier
}

func (c *CloudRunCollector) FetchWindow(ctx context.Context, projectID string, service descriptor.Service, start, end time.Time) (Window, error) {
	total := fmt.Sprintf(
		"metric.type=%q AND resource.type=%q AND resource.labels.service_name=%q",
		"run.googleapis.com/request_count", "cloud_run_revision", service.Name)
	failed := total + ` AND metric.labels.response_code_class="5xx"`
	return fetchCounts(ctx, c.Metrics, projectID, service.Name, total, failed, start, end)
}

// StorageBucketCollector measures operation-success availability for Cloud
// Storage buckets: failed units are API requests that did not return OK.
type StorageBucketCollector struct {
	Metrics MetricQuerier
}

func (c *StorageBucketCollector) FetchWindow(ctx context.Context, projectID string, service descriptor.Service, start, end time.Time) (Window, error) {
	base := fmt.Sprintf(
		"metric.type=%q AND resource.type=%q AND resource.labels.bucket_name=%q",
		"storage.googleapis.com/api/request_count", "gcs_bucket", service.Name)
	failed := base + ` AND metric.labels.response_code!="OK"`
	return fetchCounts(ctx, c.Metrics, projectID, service.Name, base, failed, start, end)
}

// BigQueryCollector measures job-success availability for BigQuery projects:
// failed units are queries that ended in error.
type BigQueryCollector struct {
	Metrics MetricQuerier
}

func (c *BigQueryCollector) FetchWindow(ctx context.Context, projectID string, service descriptor.Service, start, end time.Time) (Window, error) {
	total := fmt.Sprintf(
		"metric.type=%q AND resource.type=%q AND resource.labels.project_id=%q",
		"bigquery.googleapis.com/query/count", "bigquery_project", service.Name)
	failed := fmt.Sprintf(
		"metric.type=%q AND resource.type=%q AND resource.labels.project_id=%q",
		"bigquery.googleapis.com/job/num_failed", "bigquery_project", service.Name)
	return fetchCounts(ctx, c.Metrics, projectID, service.Name, total, failed, start, end)
}

func fetchCounts(ctx context.Context, metrics MetricQuerier, projectID, resource, totalFilter, failedFilter string, start, end time.Time) (Window, error) {
	total, err := metrics.SumInterval(ctx, projectID, totalFilter, start, end)
	if err != nil {
		return Window{}, classifyUpstream(resource, err)
	}
	failed, err := metrics.SumInterval(ctx, projectID, failedFilter, start, end)
	if err != nil {
		return Window{}, classifyUpstream(resource, err)
	}
	if total < 0 {
		total = 0
	}
	if failed < 0 {
		failed = 0
	}
	if failed > total {
		failed = total
	}
	return Window{Start: start, End: end, Total: total, Failed: failed}, nil
}

// NewGCPRegistry wires the three Cloud Monitoring collector variants.
func NewGCPRegistry(metrics MetricQuerier) *Registry {
	registry := NewRegistry()
	registry.Register(descriptor.TypeCloudRunRevision, &CloudRunCollector{Metrics: metrics})
	registry.Register(descriptor.TypeStorageBucket, &StorageBucketCollector{Metrics: metrics})
	registry.Register(descriptor.TypeBigQueryProject, &BigQueryCollector{Metrics: metrics})
	return registry
}

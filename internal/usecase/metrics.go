package usecase

import "context"

// MetricsSummary represents aggregated detection insights.
type MetricsSummary struct {
	TotalRequests        int64   `json:"total_requests"`
	FaceDetectedRequests int64   `json:"face_detected_requests"`
	FaceDetectedRate     float64 `json:"face_detected_rate"`
	EyesOpenRequests     int64   `json:"eyes_open_requests"`
	EyesOpenRate         float64 `json:"eyes_open_rate"`
	AverageLatencyMs     float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates detection metrics from persisted logs.
func (uc *DetectionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:        aggregation.TotalCount,
		FaceDetectedRequests: aggregation.FaceDetectedCount,
		EyesOpenRequests:     aggregation.EyesOpenCount,
		AverageLatencyMs:     aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.FaceDetectedRate = float64(aggregation.FaceDetectedCount) / float64(aggregation.TotalCount)
		summary.EyesOpenRate = float64(aggregation.EyesOpenCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

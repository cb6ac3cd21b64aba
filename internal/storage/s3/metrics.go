package s3

import (
	"sync"
	"time"
)

// BackendMetrics tracks S3 request volume for one backend
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`
}

type metricsRecorder struct {
	mu      sync.RWMutex
	metrics BackendMetrics
	now     func() time.Time
}

func (r *metricsRecorder) request(duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.Requests++
	if err != nil {
		r.metrics.Errors++
		r.metrics.LastError = err.Error()
		r.metrics.LastErrorTime = r.now()
	}

	// exponential moving average, weight 1/10
	if r.metrics.Requests == 1 {
		r.metrics.AverageLatency = duration
	} else {
		r.metrics.AverageLatency = time.Duration(
			(int64(r.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
}

func (r *metricsRecorder) uploaded(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.BytesUploaded += int64(n)
}

func (r *metricsRecorder) downloaded(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.BytesDownloaded += int64(n)
}

func (r *metricsRecorder) snapshot() BackendMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// ErrorRate returns the share of failed requests.
func (m BackendMetrics) ErrorRate() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Requests)
}

package loopexec

import "sync"

// Metrics is a point-in-time snapshot of an EventLoop's throughput,
// latency and queue lengths; the counters and latency figures are
// recorded only when WithMetrics(true) is set.
type Metrics struct {
	TasksExecuted    uint64
	TicksCompleted   uint64
	TaskLatencyP50   float64
	TaskLatencyP99   float64
	TaskLatencyMax   float64
	TaskLatencyMean  float64
	ExternalQueueLen int
	InternalQueueLen int
	TimerQueueLen    int
}

// metricsCollector accumulates task-latency samples with a P-Square
// estimator, avoiding the O(n log n) cost (and unbounded memory) of
// sorting raw latency samples. Grounded on the teacher's
// eventloop/metrics.go, trimmed to the single task-latency stream this
// runtime's tick loop produces.
type metricsCollector struct {
	mu             sync.Mutex
	enabled        bool
	tasksExecuted  uint64
	ticksCompleted uint64
	taskLatency    *multiQuantile
}

func newMetricsCollector(enabled bool) *metricsCollector {
	return &metricsCollector{
		enabled:     enabled,
		taskLatency: newMultiQuantile(0.50, 0.99),
	}
}

func (m *metricsCollector) recordTask(latencyNanos float64) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasksExecuted++
	m.taskLatency.Update(latencyNanos)
}

func (m *metricsCollector) recordTick() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	m.ticksCompleted++
	m.mu.Unlock()
}

func (m *metricsCollector) snapshot(extLen, intLen, timerLen int) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		TasksExecuted:    m.tasksExecuted,
		TicksCompleted:   m.ticksCompleted,
		TaskLatencyP50:   m.taskLatency.Quantile(0),
		TaskLatencyP99:   m.taskLatency.Quantile(1),
		TaskLatencyMax:   m.taskLatency.Max(),
		TaskLatencyMean:  m.taskLatency.Mean(),
		ExternalQueueLen: extLen,
		InternalQueueLen: intLen,
		TimerQueueLen:    timerLen,
	}
}

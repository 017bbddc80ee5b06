package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/ramnotify/types"
)

const namespace = "ramnotify"

// Metrics exports engine and scanner activity to prometheus
type Metrics struct {
	usage           *prometheus.GaugeVec
	threshold       *prometheus.GaugeVec
	over            *prometheus.GaugeVec
	notifications   *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandResults  *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	tickOverruns    prometheus.Counter
	sampleFailures  prometheus.Counter
	scanDuration    prometheus.Histogram
	scanProcesses   prometheus.Gauge
	scanFailures    prometheus.Counter
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_percent",
			Help:      "Current memory usage in percent.",
		}, []string{"resource"}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_percent",
			Help:      "Configured alert threshold in percent.",
		}, []string{"resource"}),
		over: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "over_threshold",
			Help:      "1 while usage is at or above the threshold.",
		}, []string{"resource"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Threshold notifications sent.",
		}, []string{"resource"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_started_total",
			Help:      "Commands launched, by trigger reason.",
		}, []string{"resource", "reason"}),
		commandResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_finished_total",
			Help:      "Commands finished, by result.",
		}, []string{"resource", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of launched commands.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"resource"}),
		tickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_overruns_total",
			Help:      "Ticks that took longer than the refresh interval.",
		}),
		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Ticks skipped because memory stats could not be read.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_scan_duration_seconds",
			Help:      "Duration of process list scans.",
			Buckets:   prometheus.DefBuckets,
		}),
		scanProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_scan_processes",
			Help:      "Processes read by the last successful scan.",
		}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_scan_failures_total",
			Help:      "Process scans that failed or timed out.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.usage, m.threshold, m.over,
			m.notifications, m.commands, m.commandResults, m.commandDuration,
			m.tickOverruns, m.sampleFailures,
			m.scanDuration, m.scanProcesses, m.scanFailures,
		)
	}
	return m
}

// ObserveStatus records the gauges of one tick
func (m *Metrics) ObserveStatus(status types.Status) {
	for _, rs := range []types.ResourceStatus{status.Physical, status.Swap} {
		name := rs.Resource.String()
		m.usage.WithLabelValues(name).Set(rs.Percent)
		m.threshold.WithLabelValues(name).Set(float64(rs.Threshold))
		over := 0.0
		if rs.Over {
			over = 1
		}
		m.over.WithLabelValues(name).Set(over)
	}
}

// Notified counts a notification
func (m *Metrics) Notified(resource types.Resource) {
	m.notifications.WithLabelValues(resource.String()).Inc()
}

// CommandStarted counts a launch
func (m *Metrics) CommandStarted(resource types.Resource, reason string) {
	m.commands.WithLabelValues(resource.String(), reason).Inc()
}

// CommandFinished counts a completion and its duration
func (m *Metrics) CommandFinished(resource types.Resource, res types.CommandResult) {
	result := "launch_failed"
	if res.Launched() {
		result = "ok"
		if *res.ExitCode != 0 {
			result = "nonzero"
		}
		m.commandDuration.WithLabelValues(resource.String()).Observe(res.Duration.Seconds())
	}
	m.commandResults.WithLabelValues(resource.String(), result).Inc()
}

// TickOverrun counts a late tick
func (m *Metrics) TickOverrun(time.Duration) {
	m.tickOverruns.Inc()
}

// SampleFailed counts a skipped tick
func (m *Metrics) SampleFailed() {
	m.sampleFailures.Inc()
}

// ObserveScan records a process scan
func (m *Metrics) ObserveScan(elapsed time.Duration, count int, err error) {
	if err != nil {
		m.scanFailures.Inc()
		return
	}
	m.scanDuration.Observe(elapsed.Seconds())
	m.scanProcesses.Set(float64(count))
}

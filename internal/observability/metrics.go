package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/tokencore/internal/device"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokencore",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokencore",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	apduCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokencore",
			Subsystem: "apdu",
			Name:      "commands_total",
			Help:      "Answered commands by instruction and status word.",
		},
		[]string{"ins", "status"},
	)
	apduDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokencore",
			Subsystem: "apdu",
			Name:      "duration_seconds",
			Help:      "Decode, dispatch and respond time per command.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"ins"},
	)
	loopExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokencore",
			Subsystem: "loop",
			Name:      "exits_total",
			Help:      "Receive loop exits by reason.",
		},
		[]string{"reason"},
	)
	loopState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tokencore",
			Subsystem: "loop",
			Name:      "state",
			Help:      "Current loop state (0 READY, 1 RECEIVING, 2 PROCESSING, 3 RESTART, 4 STOPPED).",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, apduCommands, apduDuration, loopExits, loopState)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// LoopMetrics exports loop telemetry to the default prometheus registry.
type LoopMetrics struct{}

var _ device.Observer = LoopMetrics{}

func NewLoopMetrics() LoopMetrics {
	RegisterMetrics()
	return LoopMetrics{}
}

func (LoopMetrics) ObserveState(state device.LoopState) {
	loopState.Set(float64(state))
}

func (LoopMetrics) ObserveResult(res device.Result) {
	ins := "-"
	if res.Decoded {
		ins = insLabel(res.Command.Instruction)
	}
	apduCommands.WithLabelValues(ins, res.Status.Hex()).Inc()
	apduDuration.WithLabelValues(ins).Observe(res.Elapsed.Seconds())
}

func (LoopMetrics) ObserveExit(reason device.ExitReason) {
	loopExits.WithLabelValues(reason.String()).Inc()
}

func insLabel(ins byte) string {
	return fmt.Sprintf("%02X", ins)
}

package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	authOutcomes  map[string]int64
	latencyTotal  map[string]time.Duration
	jobRuns       map[string]int64
	notifications map[string]int64
	startedAt     time.Time
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	UptimeSeconds   int64            `json:"uptimeSeconds"`
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	AuthOutcomes    map[string]int64 `json:"authOutcomes"`
	AvgLatencyMilli map[string]int64 `json:"avgLatencyMs"`
	JobRuns         map[string]int64 `json:"jobRuns"`
	Notifications   map[string]int64 `json:"notifications"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		authOutcomes:  make(map[string]int64),
		latencyTotal:  make(map[string]time.Duration),
		jobRuns:       make(map[string]int64),
		notifications: make(map[string]int64),
		startedAt:     time.Now(),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordAuth counts an authentication outcome such as "login_success" or
// "backup_code_rejected".
func (m *Metrics) RecordAuth(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authOutcomes[outcome]++
}

// RecordJob counts a background job run.
func (m *Metrics) RecordJob(name string, ok bool) {
	if m == nil {
		return
	}
	key := name + "|ok"
	if !ok {
		key = name + "|failed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobRuns[key]++
}

// RecordNotification counts a delivered or failed notification.
func (m *Metrics) RecordNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	key := kind + "|sent"
	if !ok {
		key = kind + "|failed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[key]++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := make(map[string]int64, len(m.latencyTotal))
	for key, total := range m.latencyTotal {
		if n := m.requestCount[key]; n > 0 {
			avg[key] = (total / time.Duration(n)).Milliseconds()
		}
	}
	return Snapshot{
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
		Requests:        copyCounts(m.requestCount),
		Errors:          copyCounts(m.errorCount),
		AuthOutcomes:    copyCounts(m.authOutcomes),
		AvgLatencyMilli: avg,
		JobRuns:         copyCounts(m.jobRuns),
		Notifications:   copyCounts(m.notifications),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

package observability

import (
	"strconv"
	"sync"
	"time"
)

// AssignmentOutcome labels the result of one assignment queue run.
type AssignmentOutcome string

const (
	OutcomeAssigned   AssignmentOutcome = "assigned"
	OutcomeNoProfile  AssignmentOutcome = "no_profile"
	OutcomeBusy       AssignmentOutcome = "busy"
	OutcomeIneligible AssignmentOutcome = "ineligible"
	OutcomeEmptyQueue AssignmentOutcome = "empty_queue"
	OutcomeRaceLost   AssignmentOutcome = "race_lost"
	OutcomeFailed     AssignmentOutcome = "failed"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestDuration map[string]time.Duration
	errorCount      map[string]int64
	assignments     map[AssignmentOutcome]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]time.Duration),
		errorCount:      make(map[string]int64),
		assignments:     make(map[AssignmentOutcome]int64),
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
	m.requestDuration[key] += duration
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

// RecordAssignment counts an assignment queue outcome.
func (m *Metrics) RecordAssignment(outcome AssignmentOutcome) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[outcome]++
}

// AssignmentCount returns how often outcome was recorded.
func (m *Metrics) AssignmentCount(outcome AssignmentOutcome) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignments[outcome]
}

// Snapshot copies the current counters for reporting.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requests[k] = v
	}
	avgMillis := make(map[string]float64, len(m.requestDuration))
	for k, total := range m.requestDuration {
		if n := m.requestCount[k]; n > 0 {
			avgMillis[k] = float64(total.Milliseconds()) / float64(n)
		}
	}
	errs := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errs[k] = v
	}
	assignments := make(map[string]int64, len(m.assignments))
	for k, v := range m.assignments {
		assignments[string(k)] = v
	}
	return map[string]any{
		"requests":            requests,
		"request_avg_ms":      avgMillis,
		"errors":              errs,
		"assignment_outcomes": assignments,
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

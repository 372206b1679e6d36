package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for ticket flow and HTTP traffic.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	ticketCount   map[string]int64
	handlingTotal time.Duration
	handlingN     int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		ticketCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
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

// RecordTicketEvent counts lifecycle events (created, closed, transferred).
func (m *Metrics) RecordTicketEvent(tenantID, event string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticketCount[tenantID+"|"+event]++
}

// RecordHandlingTime accumulates open-to-close durations.
func (m *Metrics) RecordHandlingTime(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlingTotal += d
	m.handlingN++
}

// TicketEventCount reads one lifecycle counter.
func (m *Metrics) TicketEventCount(tenantID, event string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketCount[tenantID+"|"+event]
}

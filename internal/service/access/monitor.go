package access

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
)

// Audit results.
const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultFlagged = "flagged"
)

// ActionSuspicious is the annotation written when an actor is flagged.
const ActionSuspicious = "suspicious_activity_detected"

const (
	// DefaultCapacity bounds the in-memory trail.
	DefaultCapacity = 1000

	suspiciousWindow    = 10
	suspiciousThreshold = 5
)

type Event struct {
	Time     time.Time `json:"timestamp"`
	ActorID  string    `json:"user_id"`
	TargetID string    `json:"target_id,omitempty"`
	Action   string    `json:"action"`
	Result   string    `json:"result"`
	Reason   string    `json:"reason,omitempty"`
	Severity Severity  `json:"severity"`
}

// Sink persists events beyond process lifetime.
type Sink interface {
	Append(ctx context.Context, e *db.SecurityEvent) error
	Recent(ctx context.Context, limit int, severity, actorID string) ([]db.SecurityEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Monitor records gate decisions in a fixed-size ring and, when a sink is
// set, in durable storage. Flagging is advisory: nothing is ever blocked
// because of it.
type Monitor struct {
	mu    sync.RWMutex
	ring  []Event
	next  int
	count int

	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewMonitor(capacity int, sink Sink, logger *slog.Logger) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Monitor{
		ring:   make([]Event, capacity),
		sink:   sink,
		logger: logger,
		now:    db.Now,
	}
}

// Check evaluates req, records the decision and returns a
// *svcErr.DeniedError when it was refused.
func (m *Monitor) Check(ctx context.Context, req Request) error {
	d := Evaluate(req)
	m.Record(ctx, req, d)
	if !d.Allowed {
		return svcErr.Denied(req.Action, d.Reason)
	}
	return nil
}

// Precheck records and rejects a request that fails the actor-only rules.
// A passing request is not recorded; the full Check that follows is.
func (m *Monitor) Precheck(ctx context.Context, req Request) error {
	d := Precheck(req)
	if d.Allowed {
		return nil
	}
	m.Record(ctx, req, d)
	return svcErr.Denied(req.Action, d.Reason)
}

// Record appends the decision. A denial triggers the suspicious-activity
// check for the actor.
func (m *Monitor) Record(ctx context.Context, req Request, d Decision) {
	result := ResultAllowed
	if !d.Allowed {
		result = ResultDenied
	}
	m.append(ctx, Event{
		Time:     m.now(),
		ActorID:  req.ActorID,
		TargetID: req.TargetID,
		Action:   req.Action,
		Result:   result,
		Reason:   d.Reason,
		Severity: d.Severity,
	})

	if !d.Allowed && m.IsSuspicious(req.ActorID) {
		m.append(ctx, Event{
			Time:     m.now(),
			ActorID:  req.ActorID,
			Action:   ActionSuspicious,
			Result:   ResultFlagged,
			Reason:   "repeated denied actions",
			Severity: SeverityCritical,
		})
	}
}

func (m *Monitor) append(ctx context.Context, e Event) {
	m.mu.Lock()
	m.ring[m.next] = e
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.mu.Unlock()

	if e.Result == ResultAllowed {
		m.logger.Info("security event", "action", e.Action, "result", e.Result, "user_id", e.ActorID)
	} else {
		m.logger.Warn("security event",
			"action", e.Action, "result", e.Result, "user_id", e.ActorID,
			"target_id", e.TargetID, "severity", e.Severity, "reason", e.Reason)
	}

	if m.sink == nil {
		return
	}
	if err := m.sink.Append(ctx, toRow(e)); err != nil {
		m.logger.Error("failed to persist security event", "action", e.Action, "err", err)
	}
}

// snapshot returns the ring contents oldest first.
func (m *Monitor) snapshot() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0, m.count)
	start := (m.next - m.count + len(m.ring)) % len(m.ring)
	for i := 0; i < m.count; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Len is the number of events held in memory.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// RecentEvents returns up to limit events, newest first.
func (m *Monitor) RecentEvents(limit int) []Event {
	all := m.snapshot()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Event, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// EventsBySeverity returns the held events of one severity, newest first.
func (m *Monitor) EventsBySeverity(sev Severity) []Event {
	var out []Event
	for _, e := range m.RecentEvents(0) {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

// IsSuspicious reports whether at least five of the actor's last ten
// decisions were denials. Flag annotations are not decisions.
func (m *Monitor) IsSuspicious(actorID string) bool {
	seen, denied := 0, 0
	for _, e := range m.RecentEvents(0) {
		if e.ActorID != actorID || e.Result == ResultFlagged {
			continue
		}
		if e.Result == ResultDenied {
			denied++
		}
		if seen++; seen == suspiciousWindow {
			break
		}
	}
	return denied >= suspiciousThreshold
}

type Report struct {
	TotalEvents     int      `json:"total_events"`
	DeniedEvents    int      `json:"denied_events"`
	CriticalEvents  int      `json:"critical_events"`
	SuspiciousUsers []string `json:"suspicious_users"`
	RecentEvents    []Event  `json:"recent_events"`
}

// Report summarizes the in-memory trail for the operator dashboard.
func (m *Monitor) Report() Report {
	all := m.snapshot()
	r := Report{TotalEvents: len(all), SuspiciousUsers: []string{}}

	flagged := map[string]bool{}
	for _, e := range all {
		switch e.Result {
		case ResultDenied:
			r.DeniedEvents++
		case ResultFlagged:
			flagged[e.ActorID] = true
		}
		if e.Severity == SeverityCritical {
			r.CriticalEvents++
		}
	}
	for id := range flagged {
		r.SuspiciousUsers = append(r.SuspiciousUsers, id)
	}
	sort.Strings(r.SuspiciousUsers)
	r.RecentEvents = m.RecentEvents(20)
	return r
}

// Warm fills the ring from the sink, so a restart keeps recent history.
func (m *Monitor) Warm(ctx context.Context) error {
	if m.sink == nil {
		return nil
	}
	rows, err := m.sink.Recent(ctx, len(m.ring), "", "")
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// rows are newest first
	for i := len(rows) - 1; i >= 0; i-- {
		m.ring[m.next] = fromRow(rows[i])
		m.next = (m.next + 1) % len(m.ring)
		if m.count < len(m.ring) {
			m.count++
		}
	}
	return nil
}

// Stored queries the durable trail. Without a sink it falls back to memory.
func (m *Monitor) Stored(ctx context.Context, limit int, severity, actorID string) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if m.sink == nil {
		var out []Event
		for _, e := range m.RecentEvents(0) {
			if (severity == "" || string(e.Severity) == severity) && (actorID == "" || e.ActorID == actorID) {
				out = append(out, e)
			}
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
	rows, err := m.sink.Recent(ctx, limit, severity, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Prune applies the retention policy to the durable trail.
func (m *Monitor) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if m.sink == nil {
		return 0, nil
	}
	return m.sink.PruneOlderThan(ctx, m.now().Add(-retention))
}

func toRow(e Event) *db.SecurityEvent {
	return &db.SecurityEvent{
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Action:    e.Action,
		Result:    e.Result,
		Reason:    e.Reason,
		Severity:  string(e.Severity),
		CreatedAt: e.Time,
	}
}

func fromRow(r db.SecurityEvent) Event {
	return Event{
		Time:     r.CreatedAt,
		ActorID:  r.ActorID,
		TargetID: r.TargetID,
		Action:   r.Action,
		Result:   r.Result,
		Reason:   r.Reason,
		Severity: Severity(r.Severity),
	}
}

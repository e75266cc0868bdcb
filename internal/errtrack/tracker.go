package errtrack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/internal/logging"
)

// DefaultMaxRecords bounds the store.
const DefaultMaxRecords = 500

// Record is the deduplicated state of one distinct failure signature.
// Repeat observations mutate Count and LastSeen in place: Count answers "how
// many times has this exact failure recurred", while the number of records
// answers "how many distinct failures exist".
type Record struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Severity  Severity          `json:"severity"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	Count     uint64            `json:"count"`
	Resolved  bool              `json:"resolved"`
	Notes     string            `json:"notes,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	StackSig  string            `json:"-"`
}

// Stats summarizes the store.
type Stats struct {
	Distinct    int              `json:"distinct"`
	Occurrences uint64           `json:"occurrences"`
	Unresolved  int              `json:"unresolved"`
	ByCategory  map[Category]int `json:"by_category"`
	BySeverity  map[Severity]int `json:"by_severity"`
	Evicted     uint64           `json:"evicted"`
}

// Tracker is the bounded, deduplicating failure store. One mutex, held
// briefly per call; classification and stack normalization happen before the
// lock is taken.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	max     int
	evicted uint64
	logger  *logging.Logger
	now     func() time.Time
}

// NewTracker creates a tracker retaining at most max records; max <= 0 uses
// DefaultMaxRecords.
func NewTracker(max int, logger *logging.Logger) *Tracker {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{
		records: make(map[string]*Record),
		max:     max,
		logger:  logger.Named("errtrack"),
		now:     time.Now,
	}
}

// Capture records one observation of err and returns the dedup id. The
// caller's stack is captured here and normalized to file:line frame headers;
// two failures from the same code path with the same type and message share
// one record. Context values are merged into the record (last write wins per
// key). Capture never returns an error: a failure to record a failure is
// contained here.
func (t *Tracker) Capture(err error, context map[string]string) string {
	if err == nil {
		return ""
	}

	typeName := fmt.Sprintf("%T", err)
	message := err.Error()
	stackSig := normalizedStack(3) // skip Callers, normalizedStack, Capture
	id := signature(typeName, message, stackSig)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[id]; ok {
		rec.Count++
		rec.LastSeen = now
		mergeContext(rec, context)
		return id
	}

	if len(t.records) >= t.max {
		t.evictOldestLocked()
	}

	category := Classify(err)
	rec := &Record{
		ID:        id,
		Category:  category,
		Severity:  Assess(err, category),
		Type:      typeName,
		Message:   message,
		FirstSeen: now,
		LastSeen:  now,
		Count:     1,
		StackSig:  stackSig,
	}
	mergeContext(rec, context)
	t.records[id] = rec

	t.logger.Debug("new failure signature",
		zap.String("id", id),
		zap.String("category", string(category)),
		zap.String("severity", string(rec.Severity)),
		zap.String("type", typeName),
	)
	return id
}

func mergeContext(rec *Record, context map[string]string) {
	if len(context) == 0 {
		return
	}
	if rec.Context == nil {
		rec.Context = make(map[string]string, len(context))
	}
	for k, v := range context {
		rec.Context[k] = v
	}
}

// evictOldestLocked removes the oldest unresolved record first; if every
// record is resolved, the oldest overall goes.
func (t *Tracker) evictOldestLocked() {
	var victim *Record
	for _, rec := range t.records {
		if rec.Resolved {
			continue
		}
		if victim == nil || rec.FirstSeen.Before(victim.FirstSeen) {
			victim = rec
		}
	}
	if victim == nil {
		for _, rec := range t.records {
			if victim == nil || rec.FirstSeen.Before(victim.FirstSeen) {
				victim = rec
			}
		}
	}
	if victim != nil {
		delete(t.records, victim.ID)
		t.evicted++
	}
}

// MarkResolved flags a record as resolved. Idempotent: resolving an already
// resolved or unknown id is a no-op, with notes kept from the first call.
func (t *Tracker) MarkResolved(id, notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok || rec.Resolved {
		return
	}
	rec.Resolved = true
	rec.Notes = notes
}

// Get returns a copy of the record for id.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// List returns copies of all records, most recently seen first.
func (t *Tracker) List() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, cloneRecord(rec))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Stats summarizes the current store contents.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Distinct:   len(t.records),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		Evicted:    t.evicted,
	}
	for _, rec := range t.records {
		s.Occurrences += rec.Count
		s.ByCategory[rec.Category]++
		s.BySeverity[rec.Severity]++
		if !rec.Resolved {
			s.Unresolved++
		}
	}
	return s
}

// UnresolvedCount is a cheap accessor for alert predicates.
func (t *Tracker) UnresolvedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records {
		if !rec.Resolved {
			n++
		}
	}
	return n
}

func cloneRecord(rec *Record) Record {
	out := *rec
	if rec.Context != nil {
		out.Context = make(map[string]string, len(rec.Context))
		for k, v := range rec.Context {
			out.Context[k] = v
		}
	}
	return out
}

// signature combines type, message, and the normalized stack into the dedup
// id. Sixteen hex characters keep ids log-friendly; collisions at that width
// are acceptable for an in-memory store of this size.
func signature(typeName, message, stackSig string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", typeName, message, stackSig)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// normalizedStack renders the caller stack as file:line frame headers only,
// dropping function arguments and free text so the same code path always
// yields the same signature.
func normalizedStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.File != "" {
			fmt.Fprintf(&b, "%s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/channel"
)

// Outcome is what a record's listeners observe: exactly one of Result or Err.
type Outcome struct {
	Result *ResolvedResult
	Err    error
}

// Record is one outstanding interaction. Resolution is single-shot: the
// first Resolve or Reject wins and later calls are no-ops.
type Record struct {
	InteractionID    string
	OriginalToolName string
	OriginalToolArgs map[string]any
	Session          channel.Session
	Details          DelegatedCallDetails
	Timestamp        time.Time

	once    sync.Once
	outcome chan Outcome
}

func newRecord(id, toolName string, args map[string]any, sess channel.Session, details DelegatedCallDetails) *Record {
	return &Record{
		InteractionID:    id,
		OriginalToolName: toolName,
		OriginalToolArgs: args,
		Session:          sess,
		Details:          details,
		Timestamp:        time.Now(),
		outcome:          make(chan Outcome, 1),
	}
}

func (r *Record) Resolve(res *ResolvedResult) {
	r.once.Do(func() { r.outcome <- Outcome{Result: res} })
}

func (r *Record) Reject(err error) {
	r.once.Do(func() { r.outcome <- Outcome{Err: err} })
}

// Wait blocks until the record is resolved, rejected, or ctx ends.
func (r *Record) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-r.outcome:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// RecordInfo is the monitor-facing snapshot of a pending record.
type RecordInfo struct {
	InteractionID   string    `json:"interactionId"`
	OriginalCommand string    `json:"originalCommand"`
	Role            string    `json:"role"`
	ServiceType     string    `json:"serviceType"`
	Age             string    `json:"age"`
	Timestamp       time.Time `json:"timestamp"`
}

// Registry is the process-wide map of pending interactions. Each id is
// inserted exactly once and removed exactly once, via Take or TakeExpired.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

func (g *Registry) Insert(r *Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[r.InteractionID]; ok {
		return fmt.Errorf("interaction %s already pending", r.InteractionID)
	}
	g.records[r.InteractionID] = r
	return nil
}

// Take removes and returns the record. The second caller for the same id
// gets ok=false, which is what makes resolution single-shot at the registry
// level.
func (g *Registry) Take(id string) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.records[id]
	if ok {
		delete(g.records, id)
	}
	return r, ok
}

// TakeExpired atomically removes every record older than ttl.
func (g *Registry) TakeExpired(ttl time.Duration, now time.Time) []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	var expired []*Record
	for id, r := range g.records {
		if now.Sub(r.Timestamp) > ttl {
			expired = append(expired, r)
			delete(g.records, id)
		}
	}
	return expired
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

func (g *Registry) Snapshot() []RecordInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	infos := make([]RecordInfo, 0, len(g.records))
	for _, r := range g.records {
		infos = append(infos, RecordInfo{
			InteractionID:   r.InteractionID,
			OriginalCommand: r.Details.OriginalCommand,
			Role:            r.Details.Role,
			ServiceType:     r.Details.ServiceType,
			Age:             now.Sub(r.Timestamp).Round(time.Second).String(),
			Timestamp:       r.Timestamp,
		})
	}
	return infos
}

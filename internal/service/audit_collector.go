package service

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

// AuditEntry is one model change queued during a request.
type AuditEntry struct {
	Action    string
	TableName string
	RecordID  string
	OldValues map[string]interface{}
	NewValues map[string]interface{}
}

// AuditCollector gathers the changes made while serving one request. The
// audit middleware owns it and persists the entries once the handler returns.
type AuditCollector struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewAuditCollector returns an empty collector.
func NewAuditCollector() *AuditCollector {
	return &AuditCollector{}
}

// Add appends an entry.
func (c *AuditCollector) Add(entry AuditEntry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

// Entries returns a copy of the queued entries.
func (c *AuditCollector) Entries() []AuditEntry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

type auditCollectorKey struct{}

// WithAuditCollector attaches a collector to ctx.
func WithAuditCollector(ctx context.Context, c *AuditCollector) context.Context {
	return context.WithValue(ctx, auditCollectorKey{}, c)
}

// AuditCollectorFromContext returns the collector carried by ctx, or nil.
func AuditCollectorFromContext(ctx context.Context) *AuditCollector {
	c, _ := ctx.Value(auditCollectorKey{}).(*AuditCollector)
	return c
}

// auditIgnoredFields never show up in diffs.
var auditIgnoredFields = map[string]struct{}{
	"updated_at": {},
}

func auditCreate(ctx context.Context, table, recordID string, value interface{}) {
	collector := AuditCollectorFromContext(ctx)
	if collector == nil {
		return
	}
	collector.Add(AuditEntry{
		Action:    models.AuditActionCreate,
		TableName: table,
		RecordID:  recordID,
		NewValues: fieldMap(value),
	})
}

// auditUpdate records only the fields that changed. Nothing is recorded when
// the two values are equal.
func auditUpdate(ctx context.Context, table, recordID string, before, after interface{}) {
	collector := AuditCollectorFromContext(ctx)
	if collector == nil {
		return
	}
	oldValues, newValues := diffFields(fieldMap(before), fieldMap(after))
	if len(newValues) == 0 && len(oldValues) == 0 {
		return
	}
	collector.Add(AuditEntry{
		Action:    models.AuditActionUpdate,
		TableName: table,
		RecordID:  recordID,
		OldValues: oldValues,
		NewValues: newValues,
	})
}

func fieldMap(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	for field := range auditIgnoredFields {
		delete(out, field)
	}
	return out
}

func diffFields(before, after map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	oldValues := map[string]interface{}{}
	newValues := map[string]interface{}{}
	for key, newValue := range after {
		oldValue, ok := before[key]
		if ok && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		if ok {
			oldValues[key] = oldValue
		}
		newValues[key] = newValue
	}
	for key, oldValue := range before {
		if _, ok := after[key]; !ok {
			oldValues[key] = oldValue
		}
	}
	return oldValues, newValues
}

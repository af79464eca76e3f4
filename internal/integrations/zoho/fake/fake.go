package fake

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient — CRM-заглушка для локального запуска и тестов.
// Держит "записи" в памяти; ошибку можно включить на конкретный record id.
type FakeClient struct {
	mu      sync.Mutex
	records map[string]map[string]any
	failIDs map[string]bool

	Updates int
	Reads   int
}

func New() *FakeClient {
	return &FakeClient{
		records: map[string]map[string]any{},
		failIDs: map[string]bool{},
	}
}

func (f *FakeClient) FailOn(recordID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[recordID] = true
}

func (f *FakeClient) UpdateRecordFields(ctx context.Context, module, recordID string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates++
	if f.failIDs[recordID] {
		return fmt.Errorf("fake zoho: update %s/%s refused", module, recordID)
	}
	key := module + "/" + recordID
	rec, ok := f.records[key]
	if !ok {
		rec = map[string]any{}
		f.records[key] = rec
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (f *FakeClient) ReadRecordField(ctx context.Context, module, recordID, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.failIDs[recordID] {
		return "", fmt.Errorf("fake zoho: read %s/%s refused", module, recordID)
	}
	rec, ok := f.records[module+"/"+recordID]
	if !ok {
		return "", nil
	}
	if v, ok := rec[field].(string); ok {
		return v, nil
	}
	return "", nil
}

// Field подсматривает записанное значение (для тестов).
func (f *FakeClient) Field(module, recordID, field string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[module+"/"+recordID]
	if !ok {
		return "", false
	}
	v, ok := rec[field].(string)
	return v, ok
}

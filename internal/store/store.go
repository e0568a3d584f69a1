// Package store persists experiences for the render API.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"adloader/internal/content"
)

var ErrNotFound = errors.New("experience not found")

// Store reads and writes whole experiences by id. Get returns ErrNotFound
// for an unknown id.
type Store interface {
	Get(ctx context.Context, id string) (*content.Experience, error)
	Put(ctx context.Context, exp *content.Experience) error
}

// record is the stored shape of an experience: its categories plus the raw
// data document.
type record struct {
	ID         string
	Categories []string
	Data       []byte
}

func encode(exp *content.Experience) (record, error) {
	if exp == nil || exp.ID == "" {
		return record{}, errors.New("store: experience id is required")
	}
	data, err := json.Marshal(exp.Data)
	if err != nil {
		return record{}, fmt.Errorf("store: encode %s: %w", exp.ID, err)
	}
	return record{ID: exp.ID, Categories: exp.Categories, Data: data}, nil
}

func (r record) decode() (*content.Experience, error) {
	exp := &content.Experience{ID: r.ID, Categories: append([]string(nil), r.Categories...)}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &exp.Data); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", r.ID, err)
		}
	}
	return exp, nil
}

// Memory keeps experiences in process. Reads return independent copies.
type Memory struct {
	mu   sync.RWMutex
	exps map[string]record
}

func NewMemory() *Memory {
	return &Memory{exps: make(map[string]record)}
}

func (m *Memory) Get(_ context.Context, id string) (*content.Experience, error) {
	m.mu.RLock()
	rec, ok := m.exps[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec.decode()
}

func (m *Memory) Put(_ context.Context, exp *content.Experience) error {
	rec, err := encode(exp)
	if err != nil {
		return err
	}
	rec.Categories = append([]string(nil), rec.Categories...)
	m.mu.Lock()
	m.exps[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

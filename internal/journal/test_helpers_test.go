package journal

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticIDProvider struct {
	ids   []string
	index int
}

func (p *staticIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

type memStore struct {
	loaded []DreamRecord
	saves  int
	last   []DreamRecord
}

func (s *memStore) Load(ctx context.Context) ([]DreamRecord, error) {
	return append([]DreamRecord(nil), s.loaded...), nil
}

func (s *memStore) Save(ctx context.Context, records []DreamRecord) error {
	s.saves++
	s.last = make([]DreamRecord, len(records))
	for index, record := range records {
		s.last[index] = record.Clone()
	}
	return nil
}

func sampleAnalysis() DreamAnalysis {
	return DreamAnalysis{
		Summary:        "Freedom",
		EmotionalTheme: "Exhilaration",
		Archetypes:     []Archetype{},
		KeySymbols:     []KeySymbol{},
	}
}

func newTestService(t *testing.T, ids []string) (*Service, *memStore) {
	t.Helper()
	store := &memStore{}
	service, err := NewService(context.Background(), ServiceConfig{
		Store:      store,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &staticIDProvider{ids: ids},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, store
}

func mustCreate(t *testing.T, service *Service, transcript string) DreamRecord {
	t.Helper()
	record, err := service.CreateRecord(context.Background(), transcript, sampleAnalysis())
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return record
}

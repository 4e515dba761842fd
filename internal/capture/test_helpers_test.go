package capture

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oneiroslab/oneiros/backend/internal/analyst"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
)

type memStore struct{}

func (s *memStore) Load(ctx context.Context) ([]journal.DreamRecord, error) {
	return nil, nil
}

func (s *memStore) Save(ctx context.Context, records []journal.DreamRecord) error {
	return nil
}

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("dream-%d", p.next), nil
}

type fakeProvider struct {
	transcribeFn func(ctx context.Context, audio []byte) (analyst.Transcription, error)
	imageFn      func(ctx context.Context, analysis journal.DreamAnalysis, size journal.ImageSize) (string, error)
	replyFn      func(ctx context.Context, dreamContext string, history []journal.ChatTurn, message string) (string, error)
}

func (p *fakeProvider) TranscribeAndAnalyze(ctx context.Context, audio []byte) (analyst.Transcription, error) {
	if p.transcribeFn == nil {
		return analyst.Transcription{
			Transcript: "I was flying over a city",
			Analysis:   sampleAnalysis(),
		}, nil
	}
	return p.transcribeFn(ctx, audio)
}

func (p *fakeProvider) GenerateImage(ctx context.Context, analysis journal.DreamAnalysis, size journal.ImageSize) (string, error) {
	if p.imageFn == nil {
		return "data:image/png;base64,fake", nil
	}
	return p.imageFn(ctx, analysis, size)
}

func (p *fakeProvider) Reply(ctx context.Context, dreamContext string, history []journal.ChatTurn, message string) (string, error) {
	if p.replyFn == nil {
		return "an assistant reply", nil
	}
	return p.replyFn(ctx, dreamContext, history, message)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	eventType string
	recordID  string
}

func (p *recordingPublisher) Publish(eventType, recordID string) {
	p.mu.Lock()
	p.events = append(p.events, publishedEvent{eventType: eventType, recordID: recordID})
	p.mu.Unlock()
}

func (p *recordingPublisher) snapshot() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func sampleAnalysis() journal.DreamAnalysis {
	return journal.DreamAnalysis{
		Summary:        "Freedom",
		EmotionalTheme: "Exhilaration",
		Archetypes:     []journal.Archetype{},
		KeySymbols:     []journal.KeySymbol{},
	}
}

func newTestJournal(t *testing.T) *journal.Service {
	t.Helper()
	service, err := journal.NewService(context.Background(), journal.ServiceConfig{
		Store:      &memStore{},
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &sequenceIDProvider{},
	})
	if err != nil {
		t.Fatalf("unexpected journal error: %v", err)
	}
	return service
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	journal      *journal.Service
	provider     *fakeProvider
	publisher    *recordingPublisher
	gate         *fakeGate
	enriched     chan string
}

type fakeGate struct {
	mu      sync.Mutex
	key     string
	invalid int
}

func (g *fakeGate) HasCredential() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.key != ""
}

func (g *fakeGate) APIKey() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.key == "" {
		return "", errNoKey
	}
	return g.key, nil
}

func (g *fakeGate) SetCredential(key string) {
	g.mu.Lock()
	g.key = key
	g.mu.Unlock()
}

func (g *fakeGate) MarkInvalid() {
	g.mu.Lock()
	g.key = ""
	g.invalid++
	g.mu.Unlock()
}

func (g *fakeGate) invalidations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.invalid
}

var errNoKey = fmt.Errorf("no key")

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	fixture := &orchestratorFixture{
		journal:   newTestJournal(t),
		provider:  &fakeProvider{},
		publisher: &recordingPublisher{},
		gate:      &fakeGate{key: "test-key"},
		enriched:  make(chan string, 4),
	}
	orchestrator, err := NewOrchestrator(Config{
		Journal:  fixture.journal,
		Provider: fixture.provider,
		Gate:     fixture.gate,
		Events:   fixture.publisher,
		EnrichHook: func(recordID string) {
			fixture.enriched <- recordID
		},
	})
	if err != nil {
		t.Fatalf("unexpected orchestrator error: %v", err)
	}
	fixture.orchestrator = orchestrator
	return fixture
}

func (f *orchestratorFixture) waitForEnrichment(t *testing.T) string {
	t.Helper()
	select {
	case recordID := <-f.enriched:
		return recordID
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for image step to settle")
		return ""
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"github.com/oneiroslab/oneiros/backend/internal/session"
)

const testClientSecret = "local-client-secret"

type stubTokenManager struct {
	issueToken  string
	issueErr    error
	validateErr error
	subject     string
}

func (s *stubTokenManager) IssueToken(_ context.Context, subject string) (string, int64, error) {
	if s.issueErr != nil {
		return "", 0, s.issueErr
	}
	token := s.issueToken
	if token == "" {
		token = "issued-token"
	}
	return token, 3600, nil
}

func (s *stubTokenManager) ValidateToken(token string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	subject := s.subject
	if subject == "" {
		subject = "journal-owner"
	}
	return subject, nil
}

type stubCapture struct {
	captureFn func(ctx context.Context, audio []byte, size journal.ImageSize) (journal.DreamRecord, error)
	chatFn    func(ctx context.Context, recordID, message string) (journal.ChatTurn, error)
	busy      bool
}

func (s *stubCapture) Capture(ctx context.Context, audio []byte, size journal.ImageSize) (journal.DreamRecord, error) {
	if s.captureFn == nil {
		return journal.DreamRecord{}, errors.New("capture not stubbed")
	}
	return s.captureFn(ctx, audio, size)
}

func (s *stubCapture) Chat(ctx context.Context, recordID, message string) (journal.ChatTurn, error) {
	if s.chatFn == nil {
		return journal.ChatTurn{}, errors.New("chat not stubbed")
	}
	return s.chatFn(ctx, recordID, message)
}

func (s *stubCapture) Busy() bool { return s.busy }

type stubJournal struct {
	records []journal.DreamRecord
}

func (s *stubJournal) ListRecords(ctx context.Context) []journal.DreamRecord {
	return append([]journal.DreamRecord(nil), s.records...)
}

func (s *stubJournal) GetRecord(ctx context.Context, recordID string) (journal.DreamRecord, bool) {
	for _, record := range s.records {
		if record.ID == recordID {
			return record, true
		}
	}
	return journal.DreamRecord{}, false
}

type stubGate struct {
	key         string
	updates     []string
	invalidated int
}

func (g *stubGate) HasCredential() bool { return g.key != "" }

func (g *stubGate) APIKey() (string, error) {
	if g.key == "" {
		return "", errors.New("no key")
	}
	return g.key, nil
}

func (g *stubGate) SetCredential(key string) {
	g.key = key
	g.updates = append(g.updates, key)
}

func (g *stubGate) MarkInvalid() {
	g.key = ""
	g.invalidated++
}

type routerFixture struct {
	handler http.Handler
	tokens  *stubTokenManager
	capture *stubCapture
	journal *stubJournal
	gate    *stubGate
	session *session.Tracker
	events  *EventDispatcher
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fixture := &routerFixture{
		tokens:  &stubTokenManager{},
		capture: &stubCapture{},
		journal: &stubJournal{},
		gate:    &stubGate{key: "configured-key"},
		events:  NewEventDispatcher(),
	}
	tracker, err := session.NewTracker(func(recordID string) bool {
		_, ok := fixture.journal.GetRecord(context.Background(), recordID)
		return ok
	})
	if err != nil {
		t.Fatalf("unexpected tracker error: %v", err)
	}
	fixture.session = tracker

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: fixture.tokens,
		Capture:      fixture.capture,
		Journal:      fixture.journal,
		Gate:         fixture.gate,
		Session:      fixture.session,
		Events:       fixture.events,
		ClientSecret: testClientSecret,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	fixture.handler = handler
	return fixture
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if authorized {
		request.Header.Set("Authorization", "Bearer valid-token")
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func sampleRecord(id string) journal.DreamRecord {
	return journal.DreamRecord{
		ID:               id,
		CreatedAtSeconds: 1700000000,
		Transcript:       "I was flying over a city",
		Analysis: journal.DreamAnalysis{
			Summary:        "Freedom",
			EmotionalTheme: "Exhilaration",
			Archetypes:     []journal.Archetype{},
			KeySymbols:     []journal.KeySymbol{},
		},
		ChatHistory: []journal.ChatTurn{},
	}
}

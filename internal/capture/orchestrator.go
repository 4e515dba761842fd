package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oneiroslab/oneiros/backend/internal/analyst"
	"github.com/oneiroslab/oneiros/backend/internal/credentials"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"go.uber.org/zap"
)

// Phase tracks where the single in-flight capture currently is.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseTranscribing Phase = "transcribing"
	PhaseImagePending Phase = "image-pending"
)

const (
	// EventDreamCreated announces a freshly created record, published before
	// image generation is even requested so the client never waits on it.
	EventDreamCreated = "dream-created"
	// EventDreamImage announces that the illustration was attached.
	EventDreamImage = "dream-image"
)

var (
	// ErrCaptureInFlight rejects a capture started while another is running.
	// One capture sequence at a time; this guard replaces the UI-side flag.
	ErrCaptureInFlight = errors.New("capture: another capture is in flight")
	// ErrCredentialExpired indicates the provider stopped accepting the key
	// mid-capture; the gate has been reset and re-selection is required.
	ErrCredentialExpired = errors.New("capture: credential expired")
	// ErrTranscriptionFailed aborts record creation entirely; nothing is
	// persisted.
	ErrTranscriptionFailed = errors.New("capture: transcription failed")
	// ErrChatUnavailable means no assistant reply was produced. The user's
	// own turn stays appended; resending is the retry path.
	ErrChatUnavailable = errors.New("capture: chat unavailable")
	// ErrRecordNotFound rejects a chat turn for an unknown record.
	ErrRecordNotFound = errors.New("capture: record not found")

	errMissingJournal  = errors.New("capture: journal service is required")
	errMissingProvider = errors.New("capture: provider is required")
	errMissingGate     = errors.New("capture: credential gate is required")
)

// Publisher fans capture events out to connected clients.
type Publisher interface {
	Publish(eventType, recordID string)
}

// Config describes orchestrator dependencies.
type Config struct {
	Journal  *journal.Service
	Provider analyst.Provider
	Gate     credentials.Gate
	Events   Publisher
	Logger   *zap.Logger
	// EnrichHook runs after the image step settles, whether or not an image
	// was attached. Used for observability.
	EnrichHook func(recordID string)
}

// Orchestrator sequences the external calls for one capture and reconciles
// partial failure: a failed transcription creates nothing, a failed
// illustration leaves a degraded-but-complete record, a failed chat reply
// keeps the user's turn.
type Orchestrator struct {
	journal    *journal.Service
	provider   analyst.Provider
	gate       credentials.Gate
	events     Publisher
	logger     *zap.Logger
	enrichHook func(recordID string)

	mu    sync.Mutex
	phase Phase
}

// NewOrchestrator validates dependencies and returns an idle orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Journal == nil {
		return nil, errMissingJournal
	}
	if cfg.Provider == nil {
		return nil, errMissingProvider
	}
	if cfg.Gate == nil {
		return nil, errMissingGate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		journal:    cfg.Journal,
		provider:   cfg.Provider,
		gate:       cfg.Gate,
		events:     cfg.Events,
		logger:     logger,
		enrichHook: cfg.EnrichHook,
		phase:      PhaseIdle,
	}, nil
}

// Phase reports the current capture phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Busy reports whether a capture sequence is in flight.
func (o *Orchestrator) Busy() bool {
	return o.Phase() != PhaseIdle
}

// Capture runs transcribe+analyze, creates the record, and returns it as
// soon as it is persisted. Image generation continues in the background so
// the caller is never blocked on the slower step.
func (o *Orchestrator) Capture(ctx context.Context, audio []byte, size journal.ImageSize) (journal.DreamRecord, error) {
	if !o.gate.HasCredential() {
		return journal.DreamRecord{}, credentials.ErrNoCredential
	}
	if !o.begin() {
		return journal.DreamRecord{}, ErrCaptureInFlight
	}

	transcription, err := o.provider.TranscribeAndAnalyze(ctx, audio)
	if err != nil {
		o.finish()
		if errors.Is(err, analyst.ErrCredentialRejected) {
			o.gate.MarkInvalid()
			o.logger.Warn("credential rejected during transcription", zap.Error(err))
			return journal.DreamRecord{}, fmt.Errorf("%w: %v", ErrCredentialExpired, err)
		}
		o.logger.Error("transcription failed, no record created", zap.Error(err))
		return journal.DreamRecord{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	record, err := o.journal.CreateRecord(ctx, transcription.Transcript, transcription.Analysis)
	if err != nil {
		o.finish()
		o.logger.Error("record creation failed", zap.Error(err))
		return journal.DreamRecord{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	o.setPhase(PhaseImagePending)
	o.publish(EventDreamCreated, record.ID)

	go o.enrich(context.WithoutCancel(ctx), record, size)

	return record, nil
}

// enrich runs the image step for an already-created record. Failure is
// logged only: a missing illustration is a degraded result, not a failed
// capture, and there is no automatic retry.
func (o *Orchestrator) enrich(ctx context.Context, record journal.DreamRecord, size journal.ImageSize) {
	defer func() {
		o.finish()
		if o.enrichHook != nil {
			o.enrichHook(record.ID)
		}
	}()

	imageURL, err := o.provider.GenerateImage(ctx, record.Analysis, size)
	if err != nil {
		o.logger.Warn("image generation failed, record stays without illustration",
			zap.String("record_id", record.ID), zap.Error(err))
		return
	}

	o.journal.AttachImage(ctx, record.ID, imageURL)
	o.publish(EventDreamImage, record.ID)
}

// Chat appends the user's turn immediately, then asks the provider for the
// assistant reply. On failure the user turn is deliberately not rolled back.
func (o *Orchestrator) Chat(ctx context.Context, recordID, message string) (journal.ChatTurn, error) {
	if !o.gate.HasCredential() {
		return journal.ChatTurn{}, credentials.ErrNoCredential
	}

	record, ok := o.journal.GetRecord(ctx, recordID)
	if !ok {
		return journal.ChatTurn{}, ErrRecordNotFound
	}

	userTurn, err := journal.NewChatTurn(journal.ChatRoleUser, message)
	if err != nil {
		return journal.ChatTurn{}, err
	}
	o.journal.AppendChatTurn(ctx, recordID, userTurn)

	reply, err := o.provider.Reply(ctx, dreamContext(record), record.ChatHistory, message)
	if err != nil {
		o.logger.Warn("chat reply failed, user turn kept",
			zap.String("record_id", recordID), zap.Error(err))
		return journal.ChatTurn{}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	assistantTurn, err := journal.NewChatTurn(journal.ChatRoleAssistant, reply)
	if err != nil {
		o.logger.Warn("chat reply unusable, user turn kept",
			zap.String("record_id", recordID), zap.Error(err))
		return journal.ChatTurn{}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	o.journal.AppendChatTurn(ctx, recordID, assistantTurn)

	return assistantTurn, nil
}

func dreamContext(record journal.DreamRecord) string {
	return fmt.Sprintf("Summary: %s. Transcript: %s", record.Analysis.Summary, record.Transcript)
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseIdle {
		return false
	}
	o.phase = PhaseTranscribing
	return true
}

func (o *Orchestrator) setPhase(phase Phase) {
	o.mu.Lock()
	o.phase = phase
	o.mu.Unlock()
}

func (o *Orchestrator) finish() {
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) publish(eventType, recordID string) {
	if o.events == nil {
		return
	}
	o.events.Publish(eventType, recordID)
}

package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a machine-readable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "journal.service.new"
	opCreateRecord   = "journal.create_record"
	opAttachImage    = "journal.attach_image"
	opAppendChatTurn = "journal.append_chat_turn"
	opPersist        = "journal.persist"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues fresh unique record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the lifecycle service.
type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the single source of truth for the in-memory dream collection.
// Every mutation is followed by a full-collection write-through persist.
type Service struct {
	mu         sync.Mutex
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	records    []DreamRecord
}

// NewService loads the persisted collection and returns the lifecycle
// service. A corrupt or absent snapshot loads as an empty collection.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	records, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, newServiceError(opServiceNew, "load_failed", err)
	}

	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		records:    records,
	}, nil
}

// CreateRecord allocates a new record with a fresh id and current timestamp,
// appends it to the collection, persists, and returns a copy. Transcript and
// analysis travel together; a record is never created without both.
func (s *Service) CreateRecord(ctx context.Context, transcript string, analysis DreamAnalysis) (DreamRecord, error) {
	if transcript == "" {
		s.logError(opCreateRecord, "missing_transcript", ErrInvalidTranscript)
		return DreamRecord{}, newServiceError(opCreateRecord, "missing_transcript", ErrInvalidTranscript)
	}
	if err := analysis.Validate(); err != nil {
		s.logError(opCreateRecord, "invalid_analysis", err)
		return DreamRecord{}, newServiceError(opCreateRecord, "invalid_analysis", err)
	}

	recordID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateRecord, "id_generation_failed", err)
		return DreamRecord{}, newServiceError(opCreateRecord, "id_generation_failed", err)
	}

	record := DreamRecord{
		ID:               recordID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
		Transcript:       transcript,
		Analysis:         analysis,
		ChatHistory:      []ChatTurn{},
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.persistLocked(ctx)
	s.mu.Unlock()

	return record.Clone(), nil
}

// AttachImage sets the record's illustration if none is present. The image
// is write-once: a second attach, or an unknown id, is a logged no-op.
func (s *Service) AttachImage(ctx context.Context, recordID string, imageURL string) {
	if imageURL == "" {
		s.logError(opAttachImage, "empty_image_url", nil, zap.String("record_id", recordID))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(recordID)
	if index < 0 {
		s.logError(opAttachImage, "record_not_found", nil, zap.String("record_id", recordID))
		return
	}
	if s.records[index].ImageURL != "" {
		s.logger.Debug("image already attached, keeping original",
			zap.String("record_id", recordID))
		return
	}

	s.records[index].ImageURL = imageURL
	s.persistLocked(ctx)
}

// AppendChatTurn appends a turn to the record's conversation and persists.
// An unknown id is logged and ignored; it must never crash the caller.
func (s *Service) AppendChatTurn(ctx context.Context, recordID string, turn ChatTurn) {
	validated, err := NewChatTurn(turn.Role, turn.Text)
	if err != nil {
		s.logError(opAppendChatTurn, "invalid_turn", err, zap.String("record_id", recordID))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(recordID)
	if index < 0 {
		s.logError(opAppendChatTurn, "record_not_found", nil, zap.String("record_id", recordID))
		return
	}

	s.records[index].ChatHistory = append(s.records[index].ChatHistory, validated)
	s.persistLocked(ctx)
}

// ListRecords returns the collection in capture order, oldest first. The
// display layer may re-sort without affecting stored order.
func (s *Service) ListRecords(ctx context.Context) []DreamRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	listed := make([]DreamRecord, 0, len(s.records))
	for _, record := range s.records {
		listed = append(listed, record.Clone())
	}
	return listed
}

// GetRecord returns a copy of the record with the given id.
func (s *Service) GetRecord(ctx context.Context, recordID string) (DreamRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(recordID)
	if index < 0 {
		return DreamRecord{}, false
	}
	return s.records[index].Clone(), true
}

func (s *Service) indexLocked(recordID string) int {
	for index := range s.records {
		if s.records[index].ID == recordID {
			return index
		}
	}
	return -1
}

// persistLocked writes the full collection through to the store. Persist
// failures are logged but not surfaced: the in-memory collection stays
// authoritative and the next mutation rewrites the whole snapshot anyway.
func (s *Service) persistLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.records); err != nil {
		s.logError(opPersist, "save_failed", err, zap.Int("record_count", len(s.records)))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("journal service error", attrs...)
}

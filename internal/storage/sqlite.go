package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DreamRow is the persisted shape of one dream record. The record itself is
// stored as a JSON payload; position preserves capture order.
type DreamRow struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	Position         int64  `gorm:"column:position;not null;index:idx_dreams_position"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DreamRow) TableName() string {
	return "dream_records"
}

// SQLiteStore persists the collection as rows in SQLite while keeping the
// snapshot contract: every save replaces the full collection and a corrupt
// payload loads the store as empty.
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore wraps an open gorm handle as a journal store.
func NewSQLiteStore(db *gorm.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: database handle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load reads the full collection in capture order. Payloads that fail to
// parse mean the slot is corrupt; the whole collection loads as empty rather
// than surfacing a parse error.
func (s *SQLiteStore) Load(ctx context.Context) ([]journal.DreamRecord, error) {
	var rows []DreamRow
	if err := s.db.WithContext(ctx).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		s.logger.Warn("dream rows query failed, starting empty", zap.Error(err))
		return []journal.DreamRecord{}, nil
	}

	records := make([]journal.DreamRecord, 0, len(rows))
	for _, row := range rows {
		var record journal.DreamRecord
		if err := json.Unmarshal([]byte(row.PayloadJSON), &record); err != nil {
			s.logger.Warn("dream payload parse failed, starting empty",
				zap.String("record_id", row.RecordID), zap.Error(err))
			return []journal.DreamRecord{}, nil
		}
		records = append(records, record)
	}
	return records, nil
}

// Save replaces the stored collection with the provided one inside a single
// transaction, mirroring the full-collection dump of the snapshot slot.
func (s *SQLiteStore) Save(ctx context.Context, records []journal.DreamRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&DreamRow{}).Error; err != nil {
			return fmt.Errorf("storage: clear dream rows: %w", err)
		}
		for position, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("storage: encode dream record: %w", err)
			}
			row := DreamRow{
				RecordID:         record.ID,
				Position:         int64(position),
				CreatedAtSeconds: record.CreatedAtSeconds,
				PayloadJSON:      string(payload),
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("storage: insert dream row: %w", err)
			}
		}
		return nil
	})
}

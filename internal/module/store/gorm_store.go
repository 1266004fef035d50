package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// contentRecord is the persistence entity backing the content store.
type contentRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Type      string `gorm:"size:64;uniqueIndex:idx_type_record;not null"`
	RecordID  string `gorm:"size:128;uniqueIndex:idx_type_record;not null"`
	Data      []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (contentRecord) TableName() string {
	return "content_records"
}

// GormStore is a ContentStore backed by a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new database-backed content store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the backing table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&contentRecord{})
}

func (s *GormStore) Upsert(ctx context.Context, typ string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	rec := contentRecord{
		Type:     typ,
		RecordID: doc.ContentID(),
		Data:     data,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}, {Name: "record_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, typ, id string, out any) error {
	var rec contentRecord
	err := s.db.WithContext(ctx).
		First(&rec, "type = ? AND record_id = ?", typ, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get record: %w", err)
	}
	if err := json.Unmarshal(rec.Data, out); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

func (s *GormStore) Query(ctx context.Context, typ string, filter Filter, out any) error {
	q := s.db.WithContext(ctx).
		Model(&contentRecord{}).
		Where("type = ?", typ)
	for field, value := range filter.Equals {
		q = q.Where("data ->> ? = ?", field, value)
	}

	var recs []contentRecord
	if err := q.Order("created_at").Find(&recs).Error; err != nil {
		return fmt.Errorf("query records: %w", err)
	}

	// Decode through a JSON array so out can be any slice type.
	docs := make([]json.RawMessage, len(recs))
	for i, rec := range recs {
		docs[i] = rec.Data
	}
	buf, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal result set: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("unmarshal result set: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, typ, id string) error {
	err := s.db.WithContext(ctx).
		Where("type = ? AND record_id = ?", typ, id).
		Delete(&contentRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

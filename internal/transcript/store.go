package transcript

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/eum-collab/translation-backend/internal/shared"
)

// Store persists finalized transcript records.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("tr")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *Store) SaveAll(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = shared.NewID("tr")
		}
		if recs[i].Timestamp.IsZero() {
			recs[i].Timestamp = time.Now()
		}
	}
	return s.db.WithContext(ctx).Save(&recs).Error
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByRoom returns the room's records oldest first, capped at limit.
func (s *Store) ListByRoom(ctx context.Context, roomID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 200
	}
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp asc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) DeleteByRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&Record{}).Error
}

package store

import (
	"context"

	"emotion-pulse/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEventStore implements EventStore on PostgreSQL via GORM.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore wraps an open database handle and ensures the schema.
func NewGormEventStore(db *gorm.DB) (*GormEventStore, error) {
	if err := db.AutoMigrate(&models.Event{}); err != nil {
		return nil, err
	}
	return &GormEventStore{db: db}, nil
}

// Put implements the idempotent first-writer-wins insert. A duplicate event
// id leaves the existing record untouched.
func (s *GormEventStore) Put(ctx context.Context, event *models.Event) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormEventStore) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormEventStore) GetByUserRange(ctx context.Context, userID string, from, to int64) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Order("timestamp ASC").
		Find(&events).Error
	return events, err
}

func (s *GormEventStore) GetByDate(ctx context.Context, date string) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("date = ?", date).
		Order("timestamp ASC").
		Find(&events).Error
	return events, err
}

func (s *GormEventStore) ForEachBatch(ctx context.Context, batchSize int, fn func(events []models.Event) error) error {
	var batch []models.Event
	result := s.db.WithContext(ctx).
		Order("event_id").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	return result.Error
}

func (s *GormEventStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormEventStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

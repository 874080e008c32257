package repository

import (
	"presencia_backend/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	DB *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{DB: db}
}

func (r *LedgerRepository) Create(entry *model.StateLedgerEntry) error {
	return r.DB.Create(entry).Error
}

// FindOpenBySession returns the session's current (unclosed) entry, or
// gorm.ErrRecordNotFound when the session has none.
func (r *LedgerRepository) FindOpenBySession(sessionID string) (*model.StateLedgerEntry, error) {
	var entry model.StateLedgerEntry
	err := r.DB.Where("session_id = ? AND state_end IS NULL", sessionID).
		Order("state_start DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) FindBySession(sessionID string) ([]model.StateLedgerEntry, error) {
	var entries []model.StateLedgerEntry
	err := r.DB.Where("session_id = ?", sessionID).
		Order("state_start ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) FindByUserPaged(userID uint, page, limit int) ([]model.StateLedgerEntry, int64, error) {
	var entries []model.StateLedgerEntry
	var total int64

	query := r.DB.Model(&model.StateLedgerEntry{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("state_start DESC").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

func (r *LedgerRepository) CountOpenBySession(sessionID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.StateLedgerEntry{}).
		Where("session_id = ? AND state_end IS NULL", sessionID).
		Count(&count).Error
	return count, err
}

package repository

import (
	"presencia_backend/internal/model"

	"gorm.io/gorm"
)

type AuditRepository struct {
	DB *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{DB: db}
}

func (r *AuditRepository) Create(entry *model.AuditLog) error {
	return r.DB.Create(entry).Error
}

func (r *AuditRepository) FindByUserPaged(userID uint, page, limit int) ([]model.AuditLog, int64, error) {
	var entries []model.AuditLog
	var total int64

	query := r.DB.Model(&model.AuditLog{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

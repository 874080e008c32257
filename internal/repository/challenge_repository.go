package repository

import (
	"time"

	"presencia_backend/internal/model"

	"gorm.io/gorm"
)

type ChallengeRepository struct {
	DB *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{DB: db}
}

func (r *ChallengeRepository) Create(challenge *model.Challenge) error {
	return r.DB.Create(challenge).Error
}

func (r *ChallengeRepository) FindByID(id string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.Where("id = ?", id).First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *ChallengeRepository) FindPendingBySession(sessionID string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.Where("session_id = ? AND result = ?", sessionID, model.ChallengePending).
		First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *ChallengeRepository) Update(challenge *model.Challenge) error {
	return r.DB.Save(challenge).Error
}

func (r *ChallengeRepository) FindByUserPaged(userID uint, page, limit int) ([]model.Challenge, int64, error) {
	var challenges []model.Challenge
	var total int64

	query := r.DB.Model(&model.Challenge{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("popup_time DESC").Offset(offset).Limit(limit).Find(&challenges).Error
	return challenges, total, err
}

func (r *ChallengeRepository) FindByUserBetween(userID uint, from, to time.Time) ([]model.Challenge, error) {
	var challenges []model.Challenge
	err := r.DB.Where("user_id = ? AND popup_time BETWEEN ? AND ?", userID, from, to).
		Order("popup_time ASC").
		Find(&challenges).Error
	return challenges, err
}

func (r *ChallengeRepository) CountPendingBySession(sessionID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Challenge{}).
		Where("session_id = ? AND result = ?", sessionID, model.ChallengePending).
		Count(&count).Error
	return count, err
}

package repository

import (
	"time"

	"presencia_backend/internal/model"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(session *model.WorkSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) FindByID(id string) (*model.WorkSession, error) {
	var session model.WorkSession
	err := r.DB.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByUser(userID uint) (*model.WorkSession, error) {
	var session model.WorkSession
	err := r.DB.Where("user_id = ? AND is_active = ?", userID, true).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindAllActive() ([]model.WorkSession, error) {
	var sessions []model.WorkSession
	err := r.DB.Where("is_active = ?", true).Find(&sessions).Error
	return sessions, err
}

// FindStale returns active sessions whose last activity predates the cutoff,
// the leftovers of crashed clients that never sent a logout.
func (r *SessionRepository) FindStale(cutoff time.Time) ([]model.WorkSession, error) {
	var sessions []model.WorkSession
	err := r.DB.Where("is_active = ? AND last_activity < ?", true, cutoff).Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) Update(session *model.WorkSession) error {
	return r.DB.Save(session).Error
}

func (r *SessionRepository) TouchActivity(userID uint, at time.Time) error {
	return r.DB.Model(&model.WorkSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("last_activity", at).
		Error
}

func (r *SessionRepository) FindByUserBetween(userID uint, from, to time.Time) ([]model.WorkSession, error) {
	var sessions []model.WorkSession
	err := r.DB.Where("user_id = ? AND session_start BETWEEN ? AND ?", userID, from, to).
		Order("session_start ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) CountActiveByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.WorkSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return count, err
}

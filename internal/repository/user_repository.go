package repository

import (
	"time"

	"presencia_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *UserRepository) Update(user *model.User) error {
	return r.DB.Save(user).Error
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_activity", time.Now()).
		Error
}

func (r *UserRepository) SetDisabled(userID uint, disabled bool) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("disabled", disabled).
		Error
}

func (r *UserRepository) SetChallengeTier(userID uint, tier model.ChallengeTier) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("challenge_tier", tier).
		Error
}

// FindInSession returns users currently holding an active session, for the
// team overview.
func (r *UserRepository) FindInSession() ([]model.User, error) {
	var users []model.User
	err := r.DB.Where("is_in_session = ?", true).Order("name ASC").Find(&users).Error
	return users, err
}

package repositories

import (
	"context"
	"errors"

	"servio-crm/internal/adapters/persistence/models"
	"servio-crm/internal/core/domain"

	"gorm.io/gorm"
)

// GormUserRepository reads the users reference table
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByUsername gets a user by username
func (r *GormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GormWorkRepository reads the works reference table
type GormWorkRepository struct {
	db *gorm.DB
}

// NewWorkRepository creates a new work repository
func NewWorkRepository(db *gorm.DB) *GormWorkRepository {
	return &GormWorkRepository{db: db}
}

// GetByID gets a work by ID
func (r *GormWorkRepository) GetByID(ctx context.Context, id uint) (*models.Work, error) {
	var work models.Work
	err := r.db.WithContext(ctx).First(&work, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWorkNotFound
		}
		return nil, err
	}
	return &work, nil
}

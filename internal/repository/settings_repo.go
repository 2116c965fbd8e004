package repository

import (
	"context"
	"errors"

	"github.com/paydue/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// SettingsRepository reads the per-user outreach policy. Missing rows fall
// back to defaults so a user without configuration still gets sane behavior.
type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.ReminderSettings, error)
}

// ProfileRepository reads the per-user business profile.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.BusinessProfile, error)
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) GetByUserID(ctx context.Context, userID string) (*domain.ReminderSettings, error) {
	var settings domain.ReminderSettings
	err := r.db.WithContext(ctx).First(&settings, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := domain.DefaultSettings(userID)
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

type GormProfileRepo struct {
	db *gorm.DB
}

func NewGormProfileRepo(db *gorm.DB) *GormProfileRepo {
	return &GormProfileRepo{db: db}
}

func (r *GormProfileRepo) GetByUserID(ctx context.Context, userID string) (*domain.BusinessProfile, error) {
	var profile domain.BusinessProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/usersvc"
	libgorm "gorm.io/gorm"
)

type profileModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Role      string `gorm:"not null;default:user"`
	CreatedAt time.Time
}

func (profileModel) TableName() string { return "profiles" }

func (m profileModel) profile() usersvc.Profile {
	p := usersvc.Profile{ID: m.ID, Email: m.Email, Role: m.Role}
	if !m.CreatedAt.IsZero() {
		created := m.CreatedAt.UTC()
		p.CreatedAt = &created
	}
	return p
}

// UserRepository keeps profiles in a local table.
type UserRepository struct {
	db       *libgorm.DB
	provider authsvc.IdentityProvider
}

// NewUserRepository returns a repository over db. When p is not nil the
// account is also removed from the identity provider on Delete.
func NewUserRepository(db *libgorm.DB, p authsvc.IdentityProvider) *UserRepository {
	return &UserRepository{db: db, provider: p}
}

func Migrate(db *libgorm.DB) error {
	return db.AutoMigrate(&profileModel{})
}

func (u *UserRepository) Profiles(ctx context.Context) ([]usersvc.Profile, error) {
	var models []profileModel
	if err := u.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	profiles := make([]usersvc.Profile, 0, len(models))
	for _, m := range models {
		profiles = append(profiles, m.profile())
	}
	return profiles, nil
}

func (u *UserRepository) Find(ctx context.Context, id string) (usersvc.Profile, error) {
	var m profileModel
	err := u.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return usersvc.Profile{}, usersvc.ErrUserNotFound
	}
	if err != nil {
		return usersvc.Profile{}, err
	}
	return m.profile(), nil
}

func (u *UserRepository) Delete(ctx context.Context, id string) error {
	if u.provider != nil {
		if err := u.provider.DeleteUser(ctx, id); err != nil {
			return err
		}
	}

	result := u.db.WithContext(ctx).Delete(&profileModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return usersvc.ErrUserNotFound
	}
	return nil
}

// Save records a profile, e.g. after a successful registration.
func (u *UserRepository) Save(ctx context.Context, p usersvc.Profile) error {
	m := profileModel{ID: p.ID, Email: p.Email, Role: p.Role}
	if m.Role == "" {
		m.Role = string(authsvc.RoleUser)
	}
	if p.CreatedAt != nil {
		m.CreatedAt = *p.CreatedAt
	}
	return u.db.WithContext(ctx).Save(&m).Error
}

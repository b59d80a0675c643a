package gorm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *libgorm.DB {
	t.Helper()

	db, err := libgorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &libgorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type recordingProvider struct {
	deleted []string
	err     error
}

func (p *recordingProvider) SignUp(context.Context, string, string) (authsvc.User, error) {
	return authsvc.User{}, nil
}

func (p *recordingProvider) SignIn(context.Context, string, string) (authsvc.Session, error) {
	return authsvc.Session{}, nil
}

func (p *recordingProvider) DeleteUser(_ context.Context, id string) error {
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, id)
	return nil
}

func TestSaveAndList(t *testing.T) {
	r := NewUserRepository(openTestDB(t), nil)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, r.Save(ctx, usersvc.Profile{ID: "u-2", Email: "bob@example.com", CreatedAt: &second}))
	require.NoError(t, r.Save(ctx, usersvc.Profile{ID: "u-1", Email: "alice@example.com", Role: "admin", CreatedAt: &first}))

	profiles, err := r.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "u-1", profiles[0].ID)
	assert.Equal(t, "admin", profiles[0].Role)
	assert.Equal(t, "u-2", profiles[1].ID)
	assert.Equal(t, string(authsvc.RoleUser), profiles[1].Role)
	require.NotNil(t, profiles[1].CreatedAt)
	assert.True(t, second.Equal(*profiles[1].CreatedAt))

	p, err := r.Find(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", p.Email)

	_, err = r.Find(ctx, "ghost")
	assert.ErrorIs(t, err, usersvc.ErrUserNotFound)
}

func TestProfilesEmpty(t *testing.T) {
	profiles, err := NewUserRepository(openTestDB(t), nil).Profiles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, profiles)
	assert.Empty(t, profiles)
}

func TestDelete(t *testing.T) {
	p := &recordingProvider{}
	r := NewUserRepository(openTestDB(t), p)
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, usersvc.Profile{ID: "u-1", Email: "alice@example.com"}))

	require.NoError(t, r.Delete(ctx, "u-1"))
	assert.Equal(t, []string{"u-1"}, p.deleted)

	_, err := r.Find(ctx, "u-1")
	assert.ErrorIs(t, err, usersvc.ErrUserNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "u-1"), usersvc.ErrUserNotFound)
}

func TestDeleteKeepsProfileWhenProviderFails(t *testing.T) {
	p := &recordingProvider{err: errors.New("provider down")}
	r := NewUserRepository(openTestDB(t), p)
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, usersvc.Profile{ID: "u-1", Email: "alice@example.com"}))

	assert.ErrorIs(t, r.Delete(ctx, "u-1"), p.err)

	_, err := r.Find(ctx, "u-1")
	assert.NoError(t, err)
}

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/supabase"
	"github.com/ichigozero/taskgate/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	err     error
	deleted []string
}

func (p *stubProvider) SignUp(context.Context, string, string) (authsvc.User, error) {
	return authsvc.User{}, nil
}

func (p *stubProvider) SignIn(context.Context, string, string) (authsvc.Session, error) {
	return authsvc.Session{}, nil
}

func (p *stubProvider) DeleteUser(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

func newTestRepository(t *testing.T, p authsvc.IdentityProvider) usersvc.UserRepository {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, profilesPath, r.URL.Path)
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("id") {
		case "":
			w.Write([]byte(`[{"id":"u-1","email":"alice@example.com","role":"admin","created_at":"2024-01-01T00:00:00Z"},{"id":"u-2","email":"bob@example.com"}]`))
		case "eq.u-1":
			w.Write([]byte(`[{"id":"u-1","email":"alice@example.com","role":"admin"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)

	api, err := supabase.New(supabase.Config{URL: srv.URL, Key: "anon", ServiceKey: "service"}, log.NewNopLogger())
	require.NoError(t, err)
	return NewUserRepository(api, p)
}

func TestProfiles(t *testing.T) {
	r := newTestRepository(t, &stubProvider{})

	profiles, err := r.Profiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "admin", profiles[0].Role)
	require.NotNil(t, profiles[0].CreatedAt)
	assert.Nil(t, profiles[1].CreatedAt)
}

func TestFind(t *testing.T) {
	r := newTestRepository(t, &stubProvider{})

	p, err := r.Find(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)

	_, err = r.Find(context.Background(), "ghost")
	assert.ErrorIs(t, err, usersvc.ErrUserNotFound)
}

func TestDelete(t *testing.T) {
	p := &stubProvider{}
	r := newTestRepository(t, p)

	require.NoError(t, r.Delete(context.Background(), "u-1"))
	assert.Equal(t, []string{"u-1"}, p.deleted)

	p.err = &supabase.UpstreamError{Op: "delete", Status: http.StatusNotFound}
	assert.ErrorIs(t, r.Delete(context.Background(), "u-1"), usersvc.ErrUserNotFound)

	p.err = &supabase.UpstreamError{Op: "delete", Status: http.StatusInternalServerError}
	assert.ErrorIs(t, r.Delete(context.Background(), "u-1"), p.err)
}

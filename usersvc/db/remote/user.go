// Package remote reads profiles from PostgREST and removes accounts through
// the identity provider's admin API.
package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-kit/kit/endpoint"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/supabase"
	"github.com/ichigozero/taskgate/usersvc"
)

const profilesPath = "/rest/v1/profiles"

type userRepository struct {
	api            *supabase.Client
	selectProfiles endpoint.Endpoint
	provider       authsvc.IdentityProvider
}

func NewUserRepository(api *supabase.Client, p authsvc.IdentityProvider) usersvc.UserRepository {
	return &userRepository{
		api:            api,
		selectProfiles: api.ReadEndpoint("postgrest.profiles.select", http.MethodGet),
		provider:       p,
	}
}

func (u *userRepository) Profiles(ctx context.Context) ([]usersvc.Profile, error) {
	return u.query(ctx, url.Values{"select": {"*"}})
}

func (u *userRepository) Find(ctx context.Context, id string) (usersvc.Profile, error) {
	profiles, err := u.query(ctx, url.Values{
		"select": {"*"},
		"id":     {"eq." + id},
		"limit":  {"1"},
	})
	if err != nil {
		return usersvc.Profile{}, err
	}
	if len(profiles) == 0 {
		return usersvc.Profile{}, usersvc.ErrUserNotFound
	}
	return profiles[0], nil
}

// query runs with the anonymous key; profiles are readable without the
// caller's token.
func (u *userRepository) query(ctx context.Context, v url.Values) ([]usersvc.Profile, error) {
	response, err := u.selectProfiles(u.api.AnonContext(ctx), supabase.Request{Path: profilesPath, Query: v})
	if err != nil {
		return nil, err
	}

	rep, err := supabase.Decode(response.(supabase.Response))
	if err != nil {
		return nil, err
	}
	var profiles []usersvc.Profile
	if err := rep.All(&profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (u *userRepository) Delete(ctx context.Context, id string) error {
	err := u.provider.DeleteUser(ctx, id)

	var ue *supabase.UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
		return usersvc.ErrUserNotFound
	}
	return err
}

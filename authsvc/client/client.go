// Package client talks to the hosted identity provider (GoTrue).
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/supabase"
)

type client struct {
	api        *supabase.Client
	signUp     endpoint.Endpoint
	token      endpoint.Endpoint
	deleteUser endpoint.Endpoint
}

func New(api *supabase.Client) authsvc.IdentityProvider {
	return &client{
		api:        api,
		signUp:     api.Endpoint("gotrue.signup", http.MethodPost),
		token:      api.Endpoint("gotrue.token", http.MethodPost),
		deleteUser: api.Endpoint("gotrue.admin.delete_user", http.MethodDelete),
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type gotrueUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (u gotrueUser) user() authsvc.User {
	return authsvc.User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// signUpResponse covers both shapes GoTrue answers with: the user object
// itself when confirmation is pending, or a session wrapping it.
type signUpResponse struct {
	gotrueUser
	User *gotrueUser `json:"user"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        gotrueUser `json:"user"`
}

func (c *client) SignUp(ctx context.Context, email, password string) (authsvc.User, error) {
	response, err := c.signUp(c.api.AnonContext(ctx), supabase.Request{
		Path: "/auth/v1/signup",
		Body: credentials{Email: email, Password: password},
	})
	if err != nil {
		return authsvc.User{}, signUpError(err)
	}

	var resp signUpResponse
	if err := json.Unmarshal(response.(supabase.Response).Body, &resp); err != nil {
		return authsvc.User{}, err
	}
	if resp.User != nil {
		return resp.User.user(), nil
	}
	return resp.gotrueUser.user(), nil
}

func signUpError(err error) error {
	var ue *supabase.UpstreamError
	if !errors.As(err, &ue) {
		return err
	}
	if ue.Status == http.StatusBadRequest || ue.Status == http.StatusUnprocessableEntity {
		if strings.Contains(strings.ToLower(ue.Body), "already registered") {
			return authsvc.ErrUserExists
		}
		return fmt.Errorf("%w: %s", authsvc.ErrInvalidArgument, upstreamMessage(ue.Body))
	}
	return err
}

func upstreamMessage(body string) string {
	var msg struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal([]byte(body), &msg) != nil {
		return "registration failed"
	}
	for _, s := range []string{msg.Msg, msg.Message, msg.ErrorDescription} {
		if s != "" {
			return s
		}
	}
	return "registration failed"
}

func (c *client) SignIn(ctx context.Context, email, password string) (authsvc.Session, error) {
	response, err := c.token(c.api.AnonContext(ctx), supabase.Request{
		Path:  "/auth/v1/token",
		Query: url.Values{"grant_type": {"password"}},
		Body:  credentials{Email: email, Password: password},
	})
	if err != nil {
		var ue *supabase.UpstreamError
		if errors.As(err, &ue) && ue.Status != 0 {
			return authsvc.Session{}, authsvc.ErrInvalidLogin
		}
		return authsvc.Session{}, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(response.(supabase.Response).Body, &resp); err != nil {
		return authsvc.Session{}, err
	}
	if resp.AccessToken == "" {
		return authsvc.Session{}, authsvc.ErrInvalidLogin
	}

	u := resp.User.user()
	u.CreatedAt = nil
	return authsvc.Session{Token: resp.AccessToken, User: u}, nil
}

// DeleteUser removes the account with the service-role key.
func (c *client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.deleteUser(c.api.ServiceContext(ctx), supabase.Request{
		Path: "/auth/v1/admin/users/" + url.PathEscape(id),
	})
	return err
}

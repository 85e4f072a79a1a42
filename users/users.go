// Package users manages the users of a DFI tenant. Admin only.
package users

import (
	"context"
	"fmt"
	"net/url"

	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

const endpointUsers = "v1/users"

// User is a user as sent to and returned by the API.
type User map[string]interface{}

// Service sends user requests through a Connect.
type Service struct {
	conn *connect.Connect
}

// New returns a users Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

func (s *Service) String() string {
	return fmt.Sprintf("Users(conn=%v)", s.conn)
}

// Create creates a user.
func (s *Service) Create(ctx context.Context, user User) (User, error) {
	var out User
	if err := s.conn.PostJSON(ctx, endpointUsers, nil, user, &out); err != nil {
		return nil, errors.Wrap(err, "creating user")
	}
	return out, nil
}

// List lists the users of the tenant.
func (s *Service) List(ctx context.Context) ([]User, error) {
	var out []User
	if err := s.conn.GetJSON(ctx, endpointUsers, nil, &out); err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	return out, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var out User
	if err := s.conn.GetJSON(ctx, endpointUsers+"/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting user %s", userID)
	}
	return out, nil
}

// Delete deletes a user.
func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.conn.DeleteJSON(ctx, endpointUsers+"/"+url.PathEscape(userID), nil, nil, nil)
	return errors.Wrapf(err, "deleting user %s", userID)
}

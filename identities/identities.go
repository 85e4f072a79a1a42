// Package identities manages DFI identities and their API tokens.
package identities

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

const (
	endpointTokens     = "v1/tokens"
	endpointIdentities = "v1/identities"
)

// DefaultValidity is an ISO 8601 period of one year.
const DefaultValidity = "P1Y"

// Service sends identity requests through a Connect.
type Service struct {
	conn *connect.Connect
}

// New returns an identities Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

func (s *Service) String() string {
	return fmt.Sprintf("Identities(conn=%v)", s.conn)
}

// Tokens lists the current identity's API tokens.
func (s *Service) Tokens(ctx context.Context, includeExpired bool) ([]map[string]interface{}, error) {
	params := url.Values{"includeExpired": {strconv.FormatBool(includeExpired)}}
	var out []map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointTokens, params, &out); err != nil {
		return nil, errors.Wrap(err, "getting tokens")
	}
	return out, nil
}

// CreateToken generates an API token for the current identity. validity is
// an ISO 8601 period such as DefaultValidity. The token itself is under
// "token" in the result.
func (s *Service) CreateToken(ctx context.Context, name, validity string) (map[string]interface{}, error) {
	body := map[string]string{"name": name, "validity": validity}
	var out map[string]interface{}
	if err := s.conn.PostJSON(ctx, endpointTokens, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "creating token %s", name)
	}
	return out, nil
}

// ExpireToken expires one of the current identity's tokens.
func (s *Service) ExpireToken(ctx context.Context, tokenID string) error {
	err := s.conn.DeleteJSON(ctx, endpointTokens+"/"+url.PathEscape(tokenID), nil, nil, nil)
	return errors.Wrapf(err, "expiring token %s", tokenID)
}

// Identities lists the identities of the tenant.
func (s *Service) Identities(ctx context.Context) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointIdentities, nil, &out); err != nil {
		return nil, errors.Wrap(err, "getting identities")
	}
	return out, nil
}

// MyIdentity returns the identity of the token in use.
func (s *Service) MyIdentity(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointIdentities+"/me", nil, &out); err != nil {
		return nil, errors.Wrap(err, "getting my identity")
	}
	return out, nil
}

// Identity returns one identity.
func (s *Service) Identity(ctx context.Context, identityID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := s.conn.GetJSON(ctx, endpointIdentities+"/"+url.PathEscape(identityID), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "getting identity %s", identityID)
	}
	return out, nil
}

// DeleteIdentity deletes an identity. Admin only.
func (s *Service) DeleteIdentity(ctx context.Context, identityID string) error {
	err := s.conn.DeleteJSON(ctx, endpointIdentities+"/"+url.PathEscape(identityID), nil, nil, nil)
	return errors.Wrapf(err, "deleting identity %s", identityID)
}

// UserID returns the user id of identityID, which has the form
// "<provider>|<user id>".
func UserID(identityID string) (string, error) {
	parts := strings.SplitN(identityID, "|", 3)
	if len(parts) < 2 {
		return "", errors.Wrapf(dfi.ErrInputValue, "identity id '%s' has no user id", identityID)
	}
	return parts[1], nil
}

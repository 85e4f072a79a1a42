// Package info reports the versions of the client library and of the DFI
// API it talks to.
package info

import (
	"context"
	"fmt"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

// Service sends version requests through a Connect.
type Service struct {
	conn *connect.Connect
}

// New returns an info Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

func (s *Service) String() string {
	return fmt.Sprintf("Info(conn=%v)", s.conn)
}

// Version returns the version of this library.
func (s *Service) Version() string {
	return dfi.Version
}

// APIVersion returns the version of the DFI API.
func (s *Service) APIVersion(ctx context.Context) (string, error) {
	v, err := s.conn.GetText(ctx, "version", nil)
	return v, errors.Wrap(err, "getting api version")
}

// ProductVersion returns the version of the DFI product.
func (s *Service) ProductVersion(ctx context.Context) (string, error) {
	v, err := s.conn.GetText(ctx, "product/version", nil)
	return v, errors.Wrap(err, "getting product version")
}

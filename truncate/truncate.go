// Package truncate deletes the data of a DFI dataset.
package truncate

import (
	"context"
	"fmt"
	"net/url"

	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
)

// Service sends truncate requests through a Connect.
type Service struct {
	conn *connect.Connect
}

// New returns a truncate Service.
func New(conn *connect.Connect) *Service {
	return &Service{conn: conn}
}

func (s *Service) String() string {
	return fmt.Sprintf("Truncate(conn=%v)", s.conn)
}

// Truncate deletes every point of a dataset, keeping its definition. Admin
// only.
func (s *Service) Truncate(ctx context.Context, datasetID string) error {
	params := url.Values{"instance": {datasetID}}
	err := s.conn.PostJSON(ctx, "truncate", params, nil, nil)
	return errors.Wrapf(err, "truncating %s", datasetID)
}

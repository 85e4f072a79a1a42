package sql

import (
	"context"

	"github.com/generalsystem/dfi/query"
	"github.com/pkg/errors"
)

// Service runs SQL statements through a query.Service.
type Service struct {
	q *query.Service
}

// New returns a Service sending translated documents through q.
func New(q *query.Service) *Service {
	return &Service{q: q}
}

func (s *Service) String() string { return "Sql" }

// Query translates statement and runs it. The result has the same types as
// query.Service.RawRequest.
func (s *Service) Query(ctx context.Context, statement string) (interface{}, error) {
	doc, err := Translate(statement)
	if err != nil {
		return nil, errors.Wrap(err, "translating sql")
	}
	return s.q.RawRequest(ctx, doc)
}

package service

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/mailtrail-systems/mailtrail/internal/logging"
	"github.com/mailtrail-systems/mailtrail/internal/repository"
	"github.com/mailtrail-systems/mailtrail/internal/translator"
)

// QueryService translates read-path filter parameters and executes the
// resulting statement.
type QueryService struct {
	querier repository.EventQuerier
	logger  *logging.Logger
}

func NewQueryService(querier repository.EventQuerier, logger *logging.Logger) *QueryService {
	return &QueryService{querier: querier, logger: logger}
}

// Search builds the parameterized query from the request parameters and runs
// it. Translation failures surface as translator.ErrInvalidFilter before the
// store is touched.
func (s *QueryService) Search(ctx context.Context, params url.Values) ([]json.RawMessage, error) {
	stmt, args, err := translator.Translate(params, time.Now())
	if err != nil {
		return nil, err
	}

	events, err := s.querier.QueryEvents(ctx, stmt, args)
	if err != nil {
		s.logger.ErrorContext(ctx, "Event query failed", logging.Error(err))
		return nil, err
	}

	s.logger.DebugContext(ctx, "Event query completed", logging.Rows(len(events)))
	return events, nil
}

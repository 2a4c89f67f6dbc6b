package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ehr/directory/internal/platform/telemetry"
)

// Service answers directory queries. It holds no records: every call loads
// the full collection from the source and runs the pipeline over it.
type Service struct {
	src     RecordSource
	locale  language.Tag
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

type Option func(*Service)

// WithLocale sets the collation language used by string sorts.
func WithLocale(tag language.Tag) Option {
	return func(s *Service) { s.locale = tag }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(src RecordSource, opts ...Option) *Service {
	s := &Service{
		src:    src,
		locale: language.English,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceName returns the name of the configured record source.
func (s *Service) SourceName() string {
	return s.src.Name()
}

// Query loads the collection and returns the requested page. A load failure
// is returned wrapped in ErrSourceUnavailable.
func (s *Service) Query(ctx context.Context, p Params) (*Result, error) {
	start := time.Now()

	records, err := s.load(ctx)
	if err != nil {
		s.metrics.ObserveQuery(s.src.Name(), telemetry.OutcomeSourceError, time.Since(start), 0)
		return nil, err
	}

	res := QueryLocale(records, p, s.locale)
	s.metrics.ObserveQuery(s.src.Name(), telemetry.OutcomeOK, time.Since(start), res.Pagination.Total)

	s.logger.Debug().
		Str("source", s.src.Name()).
		Str("search", p.Search).
		Str("sort_by", string(p.SortBy)).
		Str("id_order", string(p.IDOrder)).
		Int("total", res.Pagination.Total).
		Int("returned", len(res.Records)).
		Msg("directory query")

	return &res, nil
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id int) (*Patient, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			p := records[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) load(ctx context.Context) ([]Patient, error) {
	records, err := s.src.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("source", s.src.Name()).Msg("failed to load records")
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.src.Name(), err)
	}
	s.metrics.SetRecordsLoaded(s.src.Name(), len(records))
	return records, nil
}

package directory

import "context"

// RecordSource loads the full patient collection. Implementations read a
// static dataset and are called once per query.
type RecordSource interface {
	Load(ctx context.Context) ([]Patient, error)
	Name() string
}

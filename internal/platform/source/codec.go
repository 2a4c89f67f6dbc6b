package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ehr/directory/internal/domain/directory"
)

// ErrNotFound is returned when the dataset object does not exist. It maps
// to os.ErrNotExist so file and object sources report a missing dataset the
// same way.
var ErrNotFound = os.ErrNotExist

// ErrMalformed is returned when the dataset parses but holds duplicate ids
// or negative ages.
var ErrMalformed = errors.New("malformed dataset")

// decompress wraps r with the decoder selected by the extension of name.
func decompress(name string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		return zr, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case ".lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Decode reads a JSON array of patients and checks that ids are unique and
// ages are non-negative.
func Decode(r io.Reader) ([]directory.Patient, error) {
	var records []directory.Patient
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	if err := validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

func validate(records []directory.Patient) error {
	seen := make(map[int]struct{}, len(records))
	for i := range records {
		p := &records[i]
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate patient_id %d", ErrMalformed, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Age < 0 {
			return fmt.Errorf("%w: patient_id %d has negative age %d", ErrMalformed, p.ID, p.Age)
		}
	}
	return nil
}

func decodeObject(name string, r io.Reader) ([]directory.Patient, error) {
	rc, err := decompress(name, r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}

func nullable(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}

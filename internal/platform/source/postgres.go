package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/directory/internal/domain/directory"
)

// DBPool is the subset of pgxpool.Pool used by PostgresSource.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the dataset from the patients table. Contacts are
// stored as a JSONB array in the same shape as the file dataset.
type PostgresSource struct {
	pool DBPool
}

func NewPostgresSource(pool DBPool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Name() string { return "postgres" }

const selectPatientsPG = `SELECT patient_id, patient_name, age, medical_issue, photo_url, contacts
FROM patients ORDER BY patient_id`

func (s *PostgresSource) Load(ctx context.Context) ([]directory.Patient, error) {
	rows, err := s.pool.Query(ctx, selectPatientsPG)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var records []directory.Patient
	for rows.Next() {
		var (
			p        directory.Patient
			photo    sql.NullString
			contacts []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Condition, &photo, &contacts); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.PhotoURL = nullable(photo.String, photo.Valid)
		p.Contacts = []directory.Contact{}
		if len(contacts) > 0 {
			if err := json.Unmarshal(contacts, &p.Contacts); err != nil {
				return nil, fmt.Errorf("patient %d contacts: %w", p.ID, err)
			}
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}

	if err := validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

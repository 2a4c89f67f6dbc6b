package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ehr/directory/internal/domain/directory"
)

// SQLiteSchema is the layout SQLiteSource reads. Contact entries keep their
// list order in position.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS patients (
    patient_id    INTEGER PRIMARY KEY,
    patient_name  TEXT NOT NULL,
    age           INTEGER NOT NULL DEFAULT 0,
    medical_issue TEXT NOT NULL DEFAULT '',
    photo_url     TEXT
);

CREATE TABLE IF NOT EXISTS patient_contacts (
    patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    address    TEXT,
    number     TEXT,
    email      TEXT,
    PRIMARY KEY (patient_id, position)
);
`

// SQLiteSource reads the dataset from a SQLite database file.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens path read-only.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLiteSource{db: db}, nil
}

func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func (s *SQLiteSource) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) Load(ctx context.Context) ([]directory.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT patient_id, patient_name, age, medical_issue, photo_url
FROM patients ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var records []directory.Patient
	index := map[int]int{}
	for rows.Next() {
		var (
			p     directory.Patient
			photo sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Condition, &photo); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.PhotoURL = nullable(photo.String, photo.Valid)
		p.Contacts = []directory.Contact{}
		index[p.ID] = len(records)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}

	if err := s.loadContacts(ctx, records, index); err != nil {
		return nil, err
	}
	if err := validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteSource) loadContacts(ctx context.Context, records []directory.Patient, index map[int]int) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT patient_id, address, number, email
FROM patient_contacts ORDER BY patient_id, position`)
	if err != nil {
		return fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                     int
			address, number, email sql.NullString
		)
		if err := rows.Scan(&id, &address, &number, &email); err != nil {
			return fmt.Errorf("scan contact: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		records[i].Contacts = append(records[i].Contacts, directory.Contact{
			Address: nullable(address.String, address.Valid),
			Number:  nullable(number.String, number.Valid),
			Email:   nullable(email.String, email.Valid),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate contacts: %w", err)
	}
	return nil
}

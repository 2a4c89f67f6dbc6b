package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/directory/internal/domain/directory"
)

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var patientColumnsPG = []string{"patient_id", "patient_name", "age", "medical_issue", "photo_url", "contacts"}

// SeedPostgres replaces the contents of the patients table with records in
// one transaction and returns the number of rows copied.
func SeedPostgres(ctx context.Context, db TxStarter, records []directory.Patient) (int64, error) {
	if err := validate(records); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for _, p := range records {
		contacts := p.Contacts
		if contacts == nil {
			contacts = []directory.Contact{}
		}
		raw, err := json.Marshal(contacts)
		if err != nil {
			return 0, fmt.Errorf("patient %d contacts: %w", p.ID, err)
		}
		rows = append(rows, []any{p.ID, p.Name, p.Age, p.Condition, p.PhotoURL, string(raw)})
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM patients"); err != nil {
		return 0, fmt.Errorf("clear patients: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"patients"}, patientColumnsPG, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy patients: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// CreateSQLite opens path for writing, creating the file and schema when
// missing.
func CreateSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return db, nil
}

// SeedSQLite replaces the patients and patient_contacts tables with records.
func SeedSQLite(ctx context.Context, db *sql.DB, records []directory.Patient) (int64, error) {
	if err := validate(records); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM patient_contacts"); err != nil {
		return 0, fmt.Errorf("clear contacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM patients"); err != nil {
		return 0, fmt.Errorf("clear patients: %w", err)
	}

	insPatient, err := tx.PrepareContext(ctx, `INSERT INTO patients
(patient_id, patient_name, age, medical_issue, photo_url) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare patient insert: %w", err)
	}
	defer insPatient.Close()

	insContact, err := tx.PrepareContext(ctx, `INSERT INTO patient_contacts
(patient_id, position, address, number, email) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare contact insert: %w", err)
	}
	defer insContact.Close()

	for _, p := range records {
		if _, err := insPatient.ExecContext(ctx, p.ID, p.Name, p.Age, p.Condition, p.PhotoURL); err != nil {
			return 0, fmt.Errorf("insert patient %d: %w", p.ID, err)
		}
		for i, ct := range p.Contacts {
			if _, err := insContact.ExecContext(ctx, p.ID, i, ct.Address, ct.Number, ct.Email); err != nil {
				return 0, fmt.Errorf("insert patient %d contact %d: %w", p.ID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(records)), nil
}

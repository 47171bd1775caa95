package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"patientregistry/internal/patient/models"
	"patientregistry/internal/patient/phone"
	id "patientregistry/pkg/domain"
	"patientregistry/pkg/platform/sentinel"
)

const uniqueViolation = pq.ErrorCode("23505")

const patientSchema = `
CREATE TABLE IF NOT EXISTS patients (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	phone_number     TEXT NOT NULL,
	phone_normalized TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	seq              BIGSERIAL,
	CONSTRAINT patients_phone_normalized_key UNIQUE (phone_normalized)
)`

const patientColumns = `id, name, phone_number, email, created_at, updated_at`

// PostgresStore persists patients in PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	newID func() uuid.UUID
}

// PostgresOption configures a PostgresStore instance.
type PostgresOption func(*PostgresStore)

// WithIDGenerator overrides the UUID source.
func WithIDGenerator(gen func() uuid.UUID) PostgresOption {
	return func(s *PostgresStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed patient store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, newID: uuid.New}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureSchema creates the patients table and its unique phone constraint. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, patientSchema); err != nil {
		return fmt.Errorf("create patients table: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]*models.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	uid, err := uuid.Parse(patientID.String())
	if err != nil {
		return nil, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, uid)
	return scanOne(row)
}

func (s *PostgresStore) ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE phone_normalized = $1)`,
		phone.Normalize(phoneNumber),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient phone: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Patient, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE phone_normalized = $1`,
		phone.Normalize(phoneNumber),
	)
	return scanOne(row)
}

// Save inserts when the ID is empty and updates the row otherwise.
func (s *PostgresStore) Save(ctx context.Context, patient *models.Patient) (*models.Patient, error) {
	saved := patient.Clone()
	normalized := phone.Normalize(patient.PhoneNumber)

	if saved.ID.IsZero() {
		uid := s.newID()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO patients (id, name, phone_number, phone_normalized, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uid, saved.Name, saved.PhoneNumber, normalized, saved.Email, saved.CreatedAt.UTC(), saved.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, sentinel.ErrAlreadyUsed
			}
			return nil, fmt.Errorf("insert patient: %w", err)
		}
		saved.ID = id.PatientID(uid.String())
		return saved, nil
	}

	uid, err := uuid.Parse(saved.ID.String())
	if err != nil {
		return nil, sentinel.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE patients
		SET name = $2, phone_number = $3, phone_normalized = $4, email = $5, updated_at = $6
		WHERE id = $1`,
		uid, saved.Name, saved.PhoneNumber, normalized, saved.Email, saved.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update patient rows affected: %w", err)
	}
	if n == 0 {
		return nil, sentinel.ErrNotFound
	}
	return saved, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, patientID id.PatientID) error {
	uid, err := uuid.Parse(patientID.String())
	if err != nil {
		return sentinel.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var (
		uid                  uuid.UUID
		p                    models.Patient
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&uid, &p.Name, &p.PhoneNumber, &p.Email, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PatientID(uid.String())
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return &p, nil
}

func scanOne(row *sql.Row) (*models.Patient, error) {
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

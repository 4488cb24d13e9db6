package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
	outboxpostgres "credregistry/pkg/platform/outbox/store/postgres"
)

const uniqueViolation = "23505"

// PostgresStore persists the registry in PostgreSQL. Events are written to
// registry_events and to the outbox in the caller's transaction.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed registry store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Owner(ctx context.Context) (id.Address, error) {
	var owner string
	err := s.execer().QueryRowContext(ctx, `SELECT address FROM registry_owner`).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", storeErr("find owner", err)
	}
	return id.Address(owner), nil
}

func (s *PostgresStore) SetOwner(ctx context.Context, owner id.Address, at time.Time) error {
	query := `
		INSERT INTO registry_owner (singleton, address, created_at)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton) DO NOTHING
		RETURNING address
	`
	var stored string
	if err := s.execer().QueryRowContext(ctx, query, owner.String(), at).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return storeErr("set owner", err)
	}
	return nil
}

func (s *PostgresStore) FindIssuer(ctx context.Context, addr id.Address) (*models.Issuer, error) {
	query := `
		SELECT address, organization, authorized, updated_at
		FROM issuers
		WHERE address = $1
	`
	var (
		issuer  models.Issuer
		address string
	)
	err := s.execer().QueryRowContext(ctx, query, addr.String()).
		Scan(&address, &issuer.Organization, &issuer.Authorized, &issuer.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeErr("find issuer", err)
	}
	issuer.Address = id.Address(address)
	return &issuer, nil
}

func (s *PostgresStore) SaveIssuer(ctx context.Context, issuer *models.Issuer) error {
	query := `
		INSERT INTO issuers (address, organization, authorized, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			organization = EXCLUDED.organization,
			authorized = EXCLUDED.authorized,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer().ExecContext(ctx, query,
		issuer.Address.String(),
		issuer.Organization,
		issuer.Authorized,
		issuer.UpdatedAt,
	)
	if err != nil {
		return storeErr("save issuer", err)
	}
	return nil
}

func (s *PostgresStore) InsertCredential(ctx context.Context, credential *models.Credential) (id.CredentialID, error) {
	query := `
		INSERT INTO credentials (
			credential_hash, metadata_hash, owner_address, issuer_address, issuer_organization,
			issued_at, expires_at, verification_code, revoked, revoked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, NULL)
		ON CONFLICT (verification_code) DO NOTHING
		RETURNING id
	`
	var newID int64
	err := s.execer().QueryRowContext(ctx, query,
		credential.CredentialHash[:],
		credential.MetadataHash[:],
		credential.Owner.String(),
		credential.Issuer.String(),
		credential.IssuerOrganization,
		credential.IssuedAt,
		credential.ExpiresAt,
		credential.VerificationCode,
	).Scan(&newID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return 0, sentinel.ErrConflict
		}
		return 0, storeErr("insert credential", err)
	}
	return id.CredentialID(newID), nil // #nosec G115 -- BIGSERIAL starts at 1
}

const credentialColumns = `
	id, credential_hash, metadata_hash, owner_address, issuer_address, issuer_organization,
	issued_at, expires_at, verification_code, revoked, revoked_at
`

func (s *PostgresStore) FindCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	credential, err := scanCredential(s.execer().QueryRowContext(ctx, query, int64(credentialID))) // #nosec G115
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeErr("find credential", err)
	}
	return credential, nil
}

func (s *PostgresStore) FindCredentialIDByCode(ctx context.Context, code string) (id.CredentialID, error) {
	var credentialID int64
	err := s.execer().QueryRowContext(ctx,
		`SELECT id FROM credentials WHERE verification_code = $1`, code,
	).Scan(&credentialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, storeErr("find credential by code", err)
	}
	return id.CredentialID(credentialID), nil // #nosec G115
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, credentialID id.CredentialID, at time.Time) error {
	query := `
		UPDATE credentials
		SET revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND NOT revoked
	`
	result, err := s.execer().ExecContext(ctx, query, int64(credentialID), at) // #nosec G115
	if err != nil {
		return storeErr("revoke credential", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storeErr("get rows affected", err)
	}
	if rows == 0 {
		// Already revoked is fine; a missing row is not.
		if _, err := s.FindCredential(ctx, credentialID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.Address) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE owner_address = $1 ORDER BY id`
	return s.listCredentials(ctx, query, owner.String())
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer id.Address) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE issuer_address = $1 ORDER BY id`
	return s.listCredentials(ctx, query, issuer.String())
}

func (s *PostgresStore) listCredentials(ctx context.Context, query string, args ...any) ([]*models.Credential, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}
	defer rows.Close()

	var credentials []*models.Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, storeErr("scan credential", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate credentials", err)
	}
	return credentials, nil
}

// AppendEvent records the event and its outbox entry. Outside a transaction the
// two inserts are not atomic, so mutating callers always go through RunInTx.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO registry_events (
			id, event_type, credential_id, issuer_address, owner_address,
			organization, verification_code, actor, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var credentialID sql.NullInt64
	if !event.CredentialID.IsNil() {
		credentialID = sql.NullInt64{Int64: int64(event.CredentialID), Valid: true} // #nosec G115
	}
	_, err := s.execer().ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		credentialID,
		nullString(event.Issuer.String()),
		nullString(event.Owner.String()),
		nullString(event.Organization),
		nullString(event.VerificationCode),
		event.Actor.String(),
		event.OccurredAt,
	)
	if err != nil {
		return storeErr("append event", err)
	}

	entry, err := event.ToOutboxEntry()
	if err != nil {
		return err
	}
	outboxStore := outboxpostgres.New(s.db)
	if s.tx != nil {
		outboxStore = outboxpostgres.NewTx(s.tx)
	}
	return outboxStore.Append(ctx, entry)
}

func (s *PostgresStore) ListEvents(ctx context.Context, credentialID id.CredentialID) ([]*models.Event, error) {
	query := `
		SELECT id, event_type, credential_id, issuer_address, owner_address,
			organization, verification_code, actor, occurred_at
		FROM registry_events
		WHERE credential_id = $1
		ORDER BY seq
	`
	rows, err := s.execer().QueryContext(ctx, query, int64(credentialID)) // #nosec G115
	if err != nil {
		return nil, storeErr("list events", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			event        models.Event
			eventType    string
			credID       sql.NullInt64
			issuer       sql.NullString
			owner        sql.NullString
			organization sql.NullString
			code         sql.NullString
			actor        string
		)
		if err := rows.Scan(&event.ID, &eventType, &credID, &issuer, &owner,
			&organization, &code, &actor, &event.OccurredAt); err != nil {
			return nil, storeErr("scan event", err)
		}
		event.Type = models.EventType(eventType)
		if credID.Valid {
			event.CredentialID = id.CredentialID(credID.Int64) // #nosec G115
		}
		event.Issuer = id.Address(issuer.String)
		event.Owner = id.Address(owner.String)
		event.Organization = organization.String
		event.VerificationCode = code.String
		event.Actor = id.Address(actor)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate events", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		credential     models.Credential
		credID         int64
		credentialHash []byte
		metadataHash   []byte
		owner          string
		issuer         string
		expiresAt      sql.NullTime
		revokedAt      sql.NullTime
	)
	if err := row.Scan(
		&credID,
		&credentialHash,
		&metadataHash,
		&owner,
		&issuer,
		&credential.IssuerOrganization,
		&credential.IssuedAt,
		&expiresAt,
		&credential.VerificationCode,
		&credential.Revoked,
		&revokedAt,
	); err != nil {
		return nil, err
	}
	credential.ID = id.CredentialID(credID) // #nosec G115
	copy(credential.CredentialHash[:], credentialHash)
	copy(credential.MetadataHash[:], metadataHash)
	credential.Owner = id.Address(owner)
	credential.Issuer = id.Address(issuer)
	if expiresAt.Valid {
		credential.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		credential.RevokedAt = &revokedAt.Time
	}
	return &credential, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// storeErr wraps err with the failed operation. Connection failures also match
// sentinel.ErrUnavailable so the service can report a retryable error.
func storeErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone)
}

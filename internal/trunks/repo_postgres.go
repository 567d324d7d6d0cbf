package trunks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"trunkctl/internal/dialstring"
	"trunkctl/pkg/utils"
)

// PostgresRepo is the durable Repository backed by the sip_trunks table.
//
// Schema (managed externally):
//
//	CREATE TABLE sip_trunks (
//	    id                 TEXT PRIMARY KEY,
//	    authentication_mode TEXT NOT NULL,
//	    username           TEXT NOT NULL DEFAULT '',
//	    password           TEXT NOT NULL DEFAULT '',
//	    auth_user          TEXT NOT NULL DEFAULT '',
//	    outbound_host      TEXT NOT NULL DEFAULT '',
//	    outbound_proxy     TEXT NOT NULL DEFAULT '',
//	    dial_string_prefix TEXT NOT NULL DEFAULT '',
//	    plus_prefix        BOOLEAN NOT NULL DEFAULT FALSE,
//	    national_dialing   BOOLEAN NOT NULL DEFAULT FALSE,
//	    sip_profile        TEXT NOT NULL DEFAULT '',
//	    created_at         TIMESTAMPTZ NOT NULL,
//	    updated_at         TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	DB *sql.DB
}

const trunkColumns = `id, authentication_mode, username, password, auth_user,
outbound_host, outbound_proxy, dial_string_prefix, plus_prefix, national_dialing,
sip_profile, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, t Trunk) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sip_trunks (`+trunkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, string(t.AuthenticationMode), t.Username, t.Password, t.AuthUser,
		t.OutboundHost, t.OutboundProxy, t.DialStringPrefix, t.PlusPrefix, t.NationalDialing,
		t.SIPProfile, now, now,
	)
	if err != nil {
		return err
	}
	// ON CONFLICT DO NOTHING swallows duplicates; surface them explicitly.
	existing, err := r.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if !existing.CreatedAt.Equal(now) {
		return ErrAlreadyExists
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Trunk, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+trunkColumns+` FROM sip_trunks WHERE id = $1`, id)
	return scanTrunk(row)
}

// Update replaces the row and returns the previous snapshot, locked for
// the duration of the transaction so concurrent updates to one trunk
// serialize.
func (r *PostgresRepo) Update(ctx context.Context, t Trunk) (Trunk, error) {
	var previous Trunk
	err := utils.WithTx(ctx, r.DB, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+trunkColumns+` FROM sip_trunks WHERE id = $1 FOR UPDATE`, t.ID)
		var err error
		previous, err = scanTrunk(row)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sip_trunks SET
				authentication_mode = $2, username = $3, password = $4, auth_user = $5,
				outbound_host = $6, outbound_proxy = $7, dial_string_prefix = $8,
				plus_prefix = $9, national_dialing = $10, sip_profile = $11, updated_at = $12
			WHERE id = $1`,
			t.ID, string(t.AuthenticationMode), t.Username, t.Password, t.AuthUser,
			t.OutboundHost, t.OutboundProxy, t.DialStringPrefix, t.PlusPrefix, t.NationalDialing,
			t.SIPProfile, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return Trunk{}, err
	}
	return previous, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) (Trunk, error) {
	row := r.DB.QueryRowContext(ctx, `DELETE FROM sip_trunks WHERE id = $1 RETURNING `+trunkColumns, id)
	return scanTrunk(row)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Trunk, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+trunkColumns+` FROM sip_trunks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trunk
	for rows.Next() {
		t, err := scanTrunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrunk(row rowScanner) (Trunk, error) {
	var t Trunk
	var mode string
	err := row.Scan(
		&t.ID, &mode, &t.Username, &t.Password, &t.AuthUser,
		&t.OutboundHost, &t.OutboundProxy, &t.DialStringPrefix, &t.PlusPrefix, &t.NationalDialing,
		&t.SIPProfile, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Trunk{}, ErrNotFound
	}
	if err != nil {
		return Trunk{}, err
	}
	t.AuthenticationMode = dialstring.AuthMode(mode)
	return t, nil
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/auth"
)

const (
	uniqueViolation = "23505"
	// class 57: admin_shutdown, crash_shutdown, cannot_connect_now...
	operatorIntervention = "57"
)

const identityColumns = `id, email, password_hash, is_active, created_at, updated_at, last_login`

type identityRepository struct {
	db *sqlx.DB
}

var _ auth.Repository = (*identityRepository)(nil)

func NewIdentityRepository(db *sqlx.DB) auth.Repository {
	return &identityRepository{db: db}
}

func (repo *identityRepository) CreateIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES (:id, :email, :password_hash, :is_active, :created_at, :updated_at, :last_login)`,
		identity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Identity{}, auth.ErrEmailExists
		}
		return auth.Identity{}, wrap(err, "inserting identity")
	}
	return identity, nil
}

func (repo *identityRepository) get(ctx context.Context, where string, arg interface{}) (auth.Identity, error) {
	var identity auth.Identity
	err := repo.db.GetContext(ctx, &identity, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Identity{}, auth.ErrNotFound
		}
		return auth.Identity{}, wrap(err, "selecting identity")
	}
	return identity, nil
}

func (repo *identityRepository) GetIdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *identityRepository) GetIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	return repo.get(ctx, "email = $1", email)
}

func (repo *identityRepository) ResolveUsernameToEmail(ctx context.Context, username string) (string, error) {
	var email sql.NullString
	if err := repo.db.GetContext(ctx, &email, `SELECT resolve_username_to_email($1)`, username); err != nil {
		return "", wrap(err, "resolving username")
	}
	if !email.Valid || email.String == "" {
		return "", auth.ErrNotFound
	}
	return email.String, nil
}

// UpdateIdentity only saves the password hash and the active flag.
func (repo *identityRepository) UpdateIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = $2, is_active = $3, updated_at = $4 WHERE id = $1`,
		identity.ID, identity.PasswordHash, identity.IsActive, identity.UpdatedAt,
	)
	if err = checkAffected(res, err); err != nil {
		if err == errNoRowsAffected {
			return auth.Identity{}, auth.ErrNotFound
		}
		return auth.Identity{}, wrap(err, "updating identity")
	}
	return repo.GetIdentityByID(ctx, identity.ID)
}

func (repo *identityRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE identities SET last_login = $2 WHERE id = $1`, id, at)
	if err = checkAffected(res, err); err != nil {
		if err == errNoRowsAffected {
			return auth.ErrNotFound
		}
		return wrap(err, "setting last login")
	}
	return nil
}

// DeleteIdentity deletes the identity with its profile.
func (repo *identityRepository) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return wrap(err, "deleting identity")
	}
	return nil
}

var errNoRowsAffected = errors.New("no rows affected")

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoRowsAffected
	}
	return nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// wrap annotates a failed database call. Losing the connection is a shutdown error.
func wrap(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return core.NewShutdownError(msg+": database connection lost", err)
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Class() == operatorIntervention {
		return core.NewShutdownError(msg+": database shutting down", err)
	}
	return errors.Wrap(err, msg)
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
)

const profileColumns = `id, name, username, role, roles, active_role, scope_id, avatar_path, created_at, updated_at`

// profileRow is a profiles row, roles being a Postgres text[].
type profileRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Username   *string        `db:"username"`
	Role       *string        `db:"role"`
	Roles      pq.StringArray `db:"roles"`
	ActiveRole *string        `db:"active_role"`
	ScopeID    *string        `db:"scope_id"`
	AvatarPath *string        `db:"avatar_path"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func newProfileRow(rec profile.Record) profileRow {
	return profileRow{
		ID:         rec.ID,
		Name:       rec.Name,
		Username:   rec.Username,
		Role:       rec.Role,
		Roles:      rec.Roles,
		ActiveRole: rec.ActiveRole,
		ScopeID:    rec.ScopeID,
		AvatarPath: rec.AvatarPath,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func (row profileRow) record() profile.Record {
	return profile.Record{
		ID:         row.ID,
		Name:       row.Name,
		Username:   row.Username,
		Role:       row.Role,
		Roles:      row.Roles,
		ActiveRole: row.ActiveRole,
		ScopeID:    row.ScopeID,
		AvatarPath: row.AvatarPath,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

type profileRepository struct {
	db *sqlx.DB
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *sqlx.DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) FetchProfile(ctx context.Context, id string) (profile.Record, error) {
	var row profileRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return profile.Record{}, profile.ErrNotFound
		}
		return profile.Record{}, wrap(err, "selecting profile")
	}
	return row.record(), nil
}

func (repo *profileRepository) CheckUsernameUniqueness(ctx context.Context, username string, excludedIDs ...string) error {
	q, args := `SELECT COUNT(*) FROM profiles WHERE username = ?`, []interface{}{username}
	if len(excludedIDs) > 0 {
		var err error
		if q, args, err = sqlx.In(q+` AND id NOT IN (?)`, username, excludedIDs); err != nil {
			return errors.Wrap(err, "building query")
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(q), args...); err != nil {
		return wrap(err, "counting usernames")
	}
	if count > 0 {
		return profile.ErrUsernameExists
	}
	return nil
}

func (repo *profileRepository) CreateProfile(ctx context.Context, rec profile.Record) (profile.Record, error) {
	row := newProfileRow(rec)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :name, :username, :role, :roles, :active_role, :scope_id, :avatar_path, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return profile.Record{}, profile.ErrUsernameExists
		}
		return profile.Record{}, wrap(err, "inserting profile")
	}
	return rec, nil
}

// UpdateProfile only saves name, username and avatar path.
func (repo *profileRepository) UpdateProfile(ctx context.Context, rec profile.Record) (profile.Record, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE profiles SET name = $2, username = $3, avatar_path = $4, updated_at = $5 WHERE id = $1`,
		rec.ID, rec.Name, rec.Username, rec.AvatarPath, rec.UpdatedAt,
	)
	if err = checkAffected(res, err); err != nil {
		switch {
		case err == errNoRowsAffected:
			return profile.Record{}, profile.ErrNotFound
		case isUniqueViolation(err):
			return profile.Record{}, profile.ErrUsernameExists
		}
		return profile.Record{}, wrap(err, "updating profile")
	}
	return repo.FetchProfile(ctx, rec.ID)
}

// SetActiveRole saves role and scope in a single statement.
func (repo *profileRepository) SetActiveRole(ctx context.Context, id string, role rbac.Role, scopeID *string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE profiles SET active_role = $2, scope_id = $3, updated_at = now() AT TIME ZONE 'utc' WHERE id = $1`,
		id, role.String(), scopeID,
	)
	if err = checkAffected(res, err); err != nil {
		if err == errNoRowsAffected {
			return profile.ErrNotFound
		}
		return wrap(err, "setting active role")
	}
	return nil
}

func (repo *profileRepository) UpdateRoles(ctx context.Context, id string, roles []rbac.Role) error {
	tags := make(pq.StringArray, 0, len(roles))
	for _, r := range roles {
		tags = append(tags, r.String())
	}

	var updated sql.NullBool
	if err := repo.db.GetContext(ctx, &updated, `SELECT admin_update_roles($1, $2)`, id, tags); err != nil {
		return wrap(err, "updating roles")
	}
	if !updated.Valid {
		return profile.ErrNotFound
	}
	return nil
}

type scopeResolver struct {
	db *sqlx.DB
}

var scopeQueries = map[string]string{
	"halaqoh": `SELECT id FROM halaqoh WHERE musyrif_id = $1 ORDER BY id LIMIT 1`,
	"santri":  `SELECT id FROM santri WHERE wali_id = $1 ORDER BY id LIMIT 1`,
	"ota":     `SELECT id FROM santri WHERE ota_id = $1 ORDER BY id LIMIT 1`,
}

// NewScopeResolver finds the first halaqoh of a musyrif, the first santri of a wali or of an ota.
func NewScopeResolver(db *sqlx.DB) profile.ScopeResolver {
	return &scopeResolver{db: db}
}

func (sr *scopeResolver) ResolveScope(ctx context.Context, id, kind string) (string, error) {
	q, ok := scopeQueries[kind]
	if !ok {
		return "", nil
	}
	var scope string
	if err := sr.db.GetContext(ctx, &scope, q, id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", wrap(err, "selecting "+kind)
	}
	return scope, nil
}

type activityWriter struct {
	db *sqlx.DB
}

// NewActivityWriter writes activity entries through the log_activity database function.
func NewActivityWriter(db *sqlx.DB) audit.Writer {
	return &activityWriter{db: db}
}

func (w *activityWriter) WriteActivity(ctx context.Context, ev audit.Event) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return errors.Wrap(err, "marshalling details")
	}
	var identity *string
	if ev.IdentityID != "" {
		identity = &ev.IdentityID
	}
	if _, err = w.db.ExecContext(ctx, `SELECT log_activity($1, $2, $3)`, identity, ev.Action, string(details)); err != nil {
		return wrap(err, "logging activity")
	}
	return nil
}

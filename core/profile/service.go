// Package profile loads, resolves and mutates the profile of an identity:
// its assigned roles, the role it acts with and the scope of that role.
package profile

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/metrics"
	"github.com/trezcool/pesantren/core/rbac"
)

var (
	NowFunc = time.Now // mockable

	maxAvatarSize int64 = 2 << 20

	// errors
	ErrNotFound        = errors.New("profile not found")
	ErrUsernameExists  = errors.New("a profile with this username already exists")
	ErrInvalidRole     = errors.New("invalid role")
	ErrRoleNotAssigned = errors.New("role not assigned to this account")
	ErrForbidden       = errors.New("permission denied")
	ErrAvatarsDisabled = errors.New("avatar uploads are disabled")

	errSelfDemotion = "you cannot remove your own admin role"
	errAvatarType   = "only images are allowed"
	errAvatarTooBig = fmt.Sprintf("the image must not exceed %d MB", maxAvatarSize>>20)
)

type (
	Repository interface {
		FetchProfile(ctx context.Context, id string) (Record, error)
		CheckUsernameUniqueness(ctx context.Context, username string, excludedIDs ...string) error
		CreateProfile(ctx context.Context, rec Record) (Record, error)
		// UpdateProfile saves name, username and avatar path.
		UpdateProfile(ctx context.Context, rec Record) (Record, error)
		// SetActiveRole saves the active role and its scope at once.
		SetActiveRole(ctx context.Context, id string, role rbac.Role, scopeID *string) error
		// UpdateRoles replaces the assigned roles, clearing the active role when it is no longer assigned.
		UpdateRoles(ctx context.Context, id string, roles []rbac.Role) error
	}

	// ScopeResolver finds what a scoped role applies to, eg. the halaqoh supervised by a musyrif.
	// It returns "" when the identity has nothing in that scope.
	ScopeResolver interface {
		ResolveScope(ctx context.Context, id, kind string) (string, error)
	}

	// AvatarStore is the storage bucket holding avatar images.
	AvatarStore interface {
		Upload(ctx context.Context, key string, av Avatar) error
		Delete(ctx context.Context, key string) error
		PublicURL(key string) string
	}

	Service interface {
		// Resolve is total: it never fails and degrades to a guest profile.
		Resolve(ctx context.Context, id string) Profile
		Get(ctx context.Context, id string) (Profile, error)
		CheckUniqueness(ctx context.Context, username string, exclude ...Profile) error
		Create(ctx context.Context, np NewProfile) (Profile, error)
		Update(ctx context.Context, id string, up UpdateProfile) (Profile, error)
		SwitchRole(ctx context.Context, id, role string) (SwitchResult, error)
		SetRoles(ctx context.Context, actor rbac.Subject, actorID, id string, roles []string) (Profile, error)
		SetAvatar(ctx context.Context, id string, av Avatar) (Profile, error)
		RemoveAvatar(ctx context.Context, id string) (Profile, error)
	}

	service struct {
		repo     Repository
		scopes   ScopeResolver
		avatars  AvatarStore
		audit    *audit.Logger
		logger   core.Logger
		resolver *Resolver
	}
)

var _ Service = (*service)(nil)

// NewService returns the profile Service. avatars may be nil to disable avatar uploads.
func NewService(
	repo Repository,
	scopes ScopeResolver,
	avatars AvatarStore,
	auditLog *audit.Logger,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		scopes:   scopes,
		avatars:  avatars,
		audit:    auditLog,
		logger:   logger,
		resolver: NewResolver(repo.FetchProfile, conf.Session.ProfileFetchTimeout, logger),
	}
}

func (svc *service) toProfile(rec Record) Profile {
	p := Profile{
		ID:         rec.ID,
		Name:       rec.Name,
		Resolution: Normalize(rec),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.Username != nil {
		p.Username = *rec.Username
	}
	// scope belongs to the stored active role: drop it when that role did not survive resolution
	if rec.ScopeID != nil && rec.ActiveRole != nil && string(p.ActiveRole) == *rec.ActiveRole {
		p.ScopeID = *rec.ScopeID
	}
	if rec.AvatarPath != nil && *rec.AvatarPath != "" && svc.avatars != nil {
		p.AvatarURL = svc.avatars.PublicURL(*rec.AvatarPath)
	}
	return p
}

func (svc *service) Resolve(ctx context.Context, id string) Profile {
	rec, ok := svc.resolver.lookup(ctx, id)
	if !ok {
		return Profile{ID: id, Resolution: GuestResolution()}
	}
	return svc.toProfile(rec)
}

func (svc *service) Get(ctx context.Context, id string) (Profile, error) {
	rec, err := svc.repo.FetchProfile(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return svc.toProfile(rec), nil
}

func (svc *service) CheckUniqueness(ctx context.Context, username string, exclude ...Profile) error {
	if username == "" {
		return nil
	}
	ids := make([]string, 0, len(exclude))
	for _, p := range exclude {
		ids = append(ids, p.ID)
	}
	if err := svc.repo.CheckUsernameUniqueness(ctx, username, ids...); err != nil {
		if errors.Cause(err) == ErrUsernameExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return errors.Wrap(err, "checking username uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, np NewProfile) (Profile, error) {
	if err := svc.CheckUniqueness(ctx, np.Username); err != nil {
		return Profile{}, err
	}

	now := NowFunc().UTC()
	rec := Record{
		ID:        np.ID,
		Name:      np.Name,
		Roles:     np.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.Roles == nil {
		rec.Roles = []string{}
	}
	if np.Username != "" {
		rec.Username = &np.Username
	}
	if len(np.Roles) > 0 {
		first := np.Roles[0]
		rec.ActiveRole = &first
	}

	rec, err := svc.repo.CreateProfile(ctx, rec)
	if err != nil {
		return Profile{}, errors.Wrap(err, "creating profile")
	}
	return svc.toProfile(rec), nil
}

func (svc *service) Update(ctx context.Context, id string, up UpdateProfile) (Profile, error) {
	rec, err := svc.repo.FetchProfile(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if err = svc.CheckUniqueness(ctx, up.Username, Profile{ID: id}); err != nil {
		return Profile{}, err
	}

	rec.Name = up.Name
	rec.Username = nil
	if up.Username != "" {
		rec.Username = &up.Username
	}
	rec.UpdatedAt = NowFunc().UTC()
	if rec, err = svc.repo.UpdateProfile(ctx, rec); err != nil {
		return Profile{}, errors.Wrap(err, "updating profile")
	}
	svc.resolver.Forget(id)

	svc.audit.Log(ctx, id, audit.ActionUpdateProfile, nil)
	return svc.toProfile(rec), nil
}

// SwitchRole makes role the active role of the identity. The scope of the role is resolved before anything
// is saved, then role and scope are saved together: a failed switch leaves the profile untouched.
func (svc *service) SwitchRole(ctx context.Context, id, role string) (SwitchResult, error) {
	target, ok := rbac.Parse(role)
	if !ok {
		return SwitchResult{}, ErrInvalidRole
	}

	rec, err := svc.repo.FetchProfile(ctx, id)
	if err != nil {
		return SwitchResult{}, errors.Wrap(err, "fetching profile")
	}
	current := Normalize(rec)
	if !rbac.Contains(current.Roles, target) {
		return SwitchResult{}, ErrRoleNotAssigned
	}

	var scopeID *string
	if kind := target.ScopeKind(); kind != "" {
		scope, err := svc.scopes.ResolveScope(ctx, id, kind)
		if err != nil {
			return SwitchResult{}, errors.Wrapf(err, "resolving %s scope", kind)
		}
		if scope != "" {
			scopeID = &scope
		}
	}

	if err = svc.repo.SetActiveRole(ctx, id, target, scopeID); err != nil {
		return SwitchResult{}, errors.Wrap(err, "setting active role")
	}
	svc.resolver.Forget(id)
	metrics.RoleSwitches.WithLabelValues(target.String()).Inc()

	res := SwitchResult{Role: target}
	if scopeID != nil {
		res.ScopeID = *scopeID
	}
	svc.audit.Log(ctx, id, audit.ActionSwitchRole, map[string]interface{}{
		"from":     current.ActiveRole,
		"to":       target,
		"scope_id": res.ScopeID,
	})
	return res, nil
}

// SetRoles replaces the assigned roles of identity id. Only an identity acting as admin may do it,
// and it may not take the admin role away from itself.
func (svc *service) SetRoles(ctx context.Context, actor rbac.Subject, actorID, id string, roles []string) (Profile, error) {
	if !actor.CanAccessWithActiveRole(rbac.Admin) {
		return Profile{}, ErrForbidden
	}

	parsed := make([]rbac.Role, 0, len(roles))
	for _, s := range roles {
		r, ok := rbac.Parse(s)
		if !ok {
			return Profile{}, core.NewValidationError(ErrInvalidRole, core.FieldError{
				Field: "roles",
				Error: fmt.Sprintf("%s: %q", ErrInvalidRole, s),
			})
		}
		if !rbac.Contains(parsed, r) {
			parsed = append(parsed, r)
		}
	}
	if len(parsed) == 0 {
		return Profile{}, core.NewValidationError(ErrInvalidRole, core.FieldError{Field: "roles", Error: ErrInvalidRole.Error()})
	}
	if id == actorID && !rbac.Contains(parsed, rbac.Admin) {
		return Profile{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errSelfDemotion})
	}

	if err := svc.repo.UpdateRoles(ctx, id, parsed); err != nil {
		return Profile{}, errors.Wrap(err, "updating roles")
	}
	svc.resolver.Forget(id)

	svc.audit.Log(ctx, actorID, audit.ActionUpdateRoles, map[string]interface{}{"target": id, "roles": parsed})
	return svc.Get(ctx, id)
}

func (svc *service) SetAvatar(ctx context.Context, id string, av Avatar) (Profile, error) {
	if svc.avatars == nil {
		return Profile{}, ErrAvatarsDisabled
	}
	if !strings.HasPrefix(av.ContentType, "image/") {
		return Profile{}, core.NewValidationError(nil, core.FieldError{Field: "avatar", Error: errAvatarType})
	}
	if av.Size > maxAvatarSize {
		return Profile{}, core.NewValidationError(nil, core.FieldError{Field: "avatar", Error: errAvatarTooBig})
	}

	rec, err := svc.repo.FetchProfile(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	key := path.Join("avatars", id, uuid.NewString()+strings.ToLower(path.Ext(av.Filename)))
	if err = svc.avatars.Upload(ctx, key, av); err != nil {
		return Profile{}, errors.Wrap(err, "uploading avatar")
	}

	old := rec.AvatarPath
	rec.AvatarPath = &key
	rec.UpdatedAt = NowFunc().UTC()
	if rec, err = svc.repo.UpdateProfile(ctx, rec); err != nil {
		return Profile{}, errors.Wrap(err, "updating profile")
	}
	svc.deleteAvatar(ctx, id, old)
	return svc.toProfile(rec), nil
}

func (svc *service) RemoveAvatar(ctx context.Context, id string) (Profile, error) {
	rec, err := svc.repo.FetchProfile(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if rec.AvatarPath == nil {
		return svc.toProfile(rec), nil
	}

	old := rec.AvatarPath
	rec.AvatarPath = nil
	rec.UpdatedAt = NowFunc().UTC()
	if rec, err = svc.repo.UpdateProfile(ctx, rec); err != nil {
		return Profile{}, errors.Wrap(err, "updating profile")
	}
	svc.deleteAvatar(ctx, id, old)
	return svc.toProfile(rec), nil
}

// deleteAvatar removes a replaced image. The profile no longer points at it, so failures are only logged.
func (svc *service) deleteAvatar(ctx context.Context, id string, key *string) {
	if key == nil || *key == "" || svc.avatars == nil {
		return
	}
	if err := svc.avatars.Delete(ctx, *key); err != nil && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("deleting avatar %s: %v", *key, err), err, core.Person{ID: id})
	}
}

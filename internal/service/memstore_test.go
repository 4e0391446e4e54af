package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"authcore/internal/model"
	"authcore/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for Postgres. Transactions are
// serialized and rolled back on error, which is enough to model the row
// lock taken at login.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	statuses map[uuid.UUID]model.Status
	users    map[uuid.UUID]model.User
	roles    map[uuid.UUID]model.Role
	views    map[uuid.UUID]model.View
	links    map[[2]uuid.UUID]model.RoleViewLink
	tokens   []model.Token
	audit    []model.AuditLog

	// dupTokenCreates makes the next n token inserts fail as if the
	// one-active-session index had been hit.
	dupTokenCreates int
	lookupErr       error
	lookups         int
	// lookupHook runs after a grant has been read and before it is
	// returned; its error is returned in place of the grant.
	lookupHook func(ctx context.Context) error
	// lockHook runs once, at the next LockByID, before the row is read.
	lockHook func()
	locks    int
}

func newMemStore() *memStore {
	return &memStore{
		statuses: map[uuid.UUID]model.Status{},
		users:    map[uuid.UUID]model.User{},
		roles:    map[uuid.UUID]model.Role{},
		views:    map[uuid.UUID]model.View{},
		links:    map[[2]uuid.UUID]model.RoleViewLink{},
	}
}

type memSnapshot struct {
	statuses map[uuid.UUID]model.Status
	users    map[uuid.UUID]model.User
	roles    map[uuid.UUID]model.Role
	views    map[uuid.UUID]model.View
	links    map[[2]uuid.UUID]model.RoleViewLink
	tokens   []model.Token
	audit    []model.AuditLog
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		statuses: copyMap(s.statuses),
		users:    copyMap(s.users),
		roles:    copyMap(s.roles),
		views:    copyMap(s.views),
		links:    copyMap(s.links),
		tokens:   append([]model.Token(nil), s.tokens...),
		audit:    append([]model.AuditLog(nil), s.audit...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses, s.users, s.roles, s.views = snap.statuses, snap.users, snap.roles, snap.views
	s.links, s.tokens, s.audit = snap.links, snap.tokens, snap.audit
}

// activeTokens returns copies of the active rows of userID.
func (s *memStore) activeTokens(userID uuid.UUID) []model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Token
	for _, t := range s.tokens {
		if t.UserID == userID && t.StatusToken {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	for _, a := range s.audit {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) setLookupHook(fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupHook = fn
}

func (s *memStore) onNextLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockHook = fn
}

func (s *memStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks
}

func (s *memStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// hydration helpers; callers hold mu

func (s *memStore) statusPtr(id *uuid.UUID) *model.Status {
	if id == nil {
		return nil
	}
	st, ok := s.statuses[*id]
	if !ok {
		return nil
	}
	return &st
}

func (s *memStore) hydrateRole(r model.Role) *model.Role {
	r.Status = s.statusPtr(r.StatusID)
	r.Links = nil
	for _, l := range s.links {
		if l.RoleID != r.ID {
			continue
		}
		if v, ok := s.views[l.ViewID]; ok {
			l.View = &v
		}
		r.Links = append(r.Links, l)
	}
	sort.Slice(r.Links, func(i, j int) bool { return r.Links[i].ViewID.String() < r.Links[j].ViewID.String() })
	return &r
}

func (s *memStore) hydrateUser(u model.User) *model.User {
	u.Status = s.statusPtr(u.StatusID)
	u.Role = nil
	if u.RoleID != nil {
		if r, ok := s.roles[*u.RoleID]; ok {
			u.Role = s.hydrateRole(r)
		}
	}
	return &u
}

// --- TransactionManager ---

type memTxKey struct{}

type memTx struct{ s *memStore }

func (m memTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()
	snap := m.s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

// --- StatusRepository ---

type memStatuses struct{ s *memStore }

func (r memStatuses) Ensure(_ context.Context, name, description string) (*model.Status, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.statuses {
		if st.Name == name {
			return &st, nil
		}
	}
	st := model.Status{ID: uuid.New(), Name: name, Description: description}
	r.s.statuses[st.ID] = st
	return &st, nil
}

// --- UserRepository ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	stored.Role, stored.Status = nil, nil
	r.s.users[user.ID] = stored
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.s.hydrateUser(u), nil
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return r.s.hydrateUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) LockByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	r.s.locks++
	hook := r.s.lockHook
	r.s.lockHook = nil
	r.s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.GetByID(ctx, id)
}

func (r memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.Password = hash
		r.s.users[id] = u
	}
	return nil
}

func (r memUsers) SetDeleted(_ context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.Deleted = deleted
		u.DeletedOn = nil
		if deleted {
			u.DeletedOn = &at
		}
		r.s.users[id] = u
	}
	return nil
}

// --- TokenRepository ---

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, token *model.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.dupTokenCreates > 0 {
		r.s.dupTokenCreates--
		return repository.ErrDuplicate
	}
	for _, t := range r.s.tokens {
		if t.Token == token.Token || (token.StatusToken && t.StatusToken && t.UserID == token.UserID) {
			return repository.ErrDuplicate
		}
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	r.s.tokens = append(r.s.tokens, *token)
	return nil
}

func (r memTokens) update(match func(model.Token) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i, t := range r.s.tokens {
		if t.StatusToken && match(t) {
			r.s.tokens[i].StatusToken = false
			n++
		}
	}
	return n
}

func (r memTokens) InvalidateAllActive(_ context.Context, userID uuid.UUID) (int64, error) {
	return r.update(func(t model.Token) bool { return t.UserID == userID }), nil
}

func (r memTokens) IsActive(_ context.Context, token string, userID uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.Token == token && t.UserID == userID && t.StatusToken && t.Expiration.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r memTokens) Revoke(_ context.Context, token string) (int64, error) {
	return r.update(func(t model.Token) bool { return t.Token == token }), nil
}

func (r memTokens) InvalidateExpired(_ context.Context, now time.Time) (int64, error) {
	return r.update(func(t model.Token) bool { return !t.Expiration.After(now) }), nil
}

func (r memTokens) ListActive(_ context.Context, userID uuid.UUID) ([]model.Token, error) {
	return r.s.activeTokens(userID), nil
}

// --- RoleRepository ---

type memRoles struct{ s *memStore }

func (r memRoles) Create(_ context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if !existing.Deleted && existing.Name == role.Name {
			return repository.ErrDuplicate
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	stored := *role
	stored.Status, stored.Links = nil, nil
	r.s.roles[role.ID] = stored
	return nil
}

func (r memRoles) GetByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.s.hydrateRole(role), nil
}

func (r memRoles) GetActiveByName(_ context.Context, name string) (*model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if !role.Deleted && role.Name == name {
			return r.s.hydrateRole(role), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memRoles) ListActive(_ context.Context) ([]model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Role
	for _, role := range r.s.roles {
		if !role.Deleted {
			out = append(out, *r.s.hydrateRole(role))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memRoles) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	roles, _ := r.ListActive(ctx)
	ids := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	return ids, nil
}

func (r memRoles) SetDeleted(_ context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	role.Deleted = deleted
	role.DeletedOn = nil
	if deleted {
		role.DeletedOn = &at
	}
	r.s.roles[id] = role
	return nil
}

// --- ViewRepository ---

type memViews struct{ s *memStore }

func (r memViews) Create(_ context.Context, view *model.View) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.views {
		if v.Path == view.Path {
			return repository.ErrDuplicate
		}
	}
	if view.ID == uuid.Nil {
		view.ID = uuid.New()
	}
	r.s.views[view.ID] = *view
	return nil
}

func (r memViews) GetByID(_ context.Context, id uuid.UUID) (*model.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.views[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r memViews) find(match func(model.View) bool) (*model.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.views {
		if !v.Deleted && match(v) {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memViews) GetActiveByPath(_ context.Context, path string) (*model.View, error) {
	return r.find(func(v model.View) bool { return v.Path == path })
}

func (r memViews) GetActiveByName(_ context.Context, name string) (*model.View, error) {
	return r.find(func(v model.View) bool { return v.Name == name })
}

func (r memViews) List(_ context.Context, includeDeleted bool, offset, limit int) ([]model.View, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.View
	for _, v := range r.s.views {
		if includeDeleted || !v.Deleted {
			all = append(all, v)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	total := int64(len(all))
	if offset >= len(all) {
		return []model.View{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r memViews) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	views, _, _ := r.List(ctx, false, 0, 1<<30)
	ids := make([]uuid.UUID, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids, nil
}

func (r memViews) SetDeleted(_ context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.views[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Deleted = deleted
	v.DeletedOn = nil
	if deleted {
		v.DeletedOn = &at
	}
	r.s.views[id] = v
	return nil
}

// --- PermissionRepository ---

type memPerms struct{ s *memStore }

func (r memPerms) CreateLinks(_ context.Context, links []model.RoleViewLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range links {
		key := [2]uuid.UUID{l.RoleID, l.ViewID}
		if _, ok := r.s.links[key]; ok {
			continue
		}
		l.View = nil
		r.s.links[key] = l
	}
	return nil
}

func (r memPerms) GetLink(_ context.Context, roleID, viewID uuid.UUID) (*model.RoleViewLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.links[[2]uuid.UUID{roleID, viewID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r memPerms) SetEnabled(_ context.Context, roleID, viewID uuid.UUID, enabled bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]uuid.UUID{roleID, viewID}
	l, ok := r.s.links[key]
	if !ok {
		return repository.ErrNotFound
	}
	l.Enabled = enabled
	l.UpdatedAt = at
	r.s.links[key] = l
	return nil
}

// LookupGrant follows the SQL: the view must exist and not be deleted, the
// role and link are outer-joined.
func (r memPerms) LookupGrant(ctx context.Context, roleID uuid.UUID, path string) (*repository.Grant, error) {
	r.s.mu.Lock()
	g, err := r.grant(roleID, path)
	hook := r.s.lookupHook
	r.s.mu.Unlock()
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return nil, herr
		}
	}
	return g, err
}

func (r memPerms) grant(roleID uuid.UUID, path string) (*repository.Grant, error) {
	r.s.lookups++
	if r.s.lookupErr != nil {
		return nil, r.s.lookupErr
	}

	var view *model.View
	for _, v := range r.s.views {
		if v.Path == path && !v.Deleted {
			v := v
			view = &v
			break
		}
	}
	if view == nil {
		return nil, repository.ErrNotFound
	}

	g := &repository.Grant{ViewID: view.ID}
	if l, ok := r.s.links[[2]uuid.UUID{roleID, view.ID}]; ok {
		g.Linked = true
		g.Enabled = l.Enabled
	}
	if role, ok := r.s.roles[roleID]; ok {
		g.RoleFound = true
		g.RoleDeleted = role.Deleted
		if st := r.s.statusPtr(role.StatusID); st != nil {
			g.RoleStatus = st.Name
		}
	}
	return g, nil
}

func (r memPerms) ListEnabledPaths(_ context.Context, roleID uuid.UUID) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var paths []string
	for _, l := range r.s.links {
		if l.RoleID != roleID || !l.Enabled {
			continue
		}
		if v, ok := r.s.views[l.ViewID]; ok && !v.Deleted {
			paths = append(paths, v.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// --- AuditRepository ---

type memAudit struct{ s *memStore }

func (r memAudit) Log(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.Details == "" {
		entry.Details = "{}"
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r memAudit) List(_ context.Context, offset, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.AuditLog, 0, len(r.s.audit))
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		entry := r.s.audit[i]
		if entry.UserID != nil {
			if u, ok := r.s.users[*entry.UserID]; ok {
				entry.User = &u
			}
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []model.AuditLog{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

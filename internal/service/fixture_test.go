package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"authcore/internal/metrics"
	"authcore/internal/model"
	"authcore/pkg/jwt"
	"authcore/pkg/password"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret = "test-secret-key-with-enough-bytes!!"
	testTTL    = 30 * time.Minute
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type revokeEvent struct {
	userID uuid.UUID
	except string
	reason string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []revokeEvent
}

func (n *recordingNotifier) SessionsRevoked(userID uuid.UUID, except, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, revokeEvent{userID: userID, except: except, reason: reason})
}

func (n *recordingNotifier) last() revokeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return revokeEvent{}
	}
	return n.events[len(n.events)-1]
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memStore
	clock    *testClock
	codec    *jwt.Codec
	hasher   *password.Hasher
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	log      *logrus.Logger
	hook     *test.Hook

	auth     AuthService
	resolver PermissionResolver
	guard    *Guard
	roles    RoleService
	views    ViewService
	users    UserService
	deps     AdminDeps
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, cache DecisionCache) *fixture {
	t.Helper()

	store := newMemStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := jwt.NewCodec(testSecret, "HS256", jwt.WithClock(clock.Now))
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		clock:    clock,
		codec:    codec,
		hasher:   password.NewHasher(bcrypt.MinCost),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
		log:      log,
		hook:     hook,
	}

	disabled := []string{model.StatusInactive, model.StatusSuspended}
	f.auth = NewAuthService(AuthDeps{
		Users:            memUsers{store},
		Tokens:           memTokens{store},
		Permissions:      memPerms{store},
		Audit:            memAudit{store},
		Tx:               memTx{store},
		Codec:            codec,
		Hasher:           f.hasher,
		Notifier:         f.notifier,
		Metrics:          f.metrics,
		Logger:           log,
		TokenTTL:         testTTL,
		DisabledStatuses: disabled,
		Now:              clock.Now,
	})
	f.resolver = NewPermissionResolver(memPerms{store}, cache, disabled, f.metrics)
	f.guard = NewGuard(f.auth, f.resolver, f.metrics, log)

	f.deps = AdminDeps{
		Users:       memUsers{store},
		Tokens:      memTokens{store},
		Roles:       memRoles{store},
		Views:       memViews{store},
		Permissions: memPerms{store},
		Statuses:    memStatuses{store},
		Audit:       memAudit{store},
		Tx:          memTx{store},
		Cache:       cache,
		Notifier:    f.notifier,
		Logger:      log,
		Now:         clock.Now,
	}
	f.roles = NewRoleService(f.deps)
	f.views = NewViewService(f.deps)
	f.users = NewUserService(f.deps, f.hasher, f.metrics)
	return f
}

func (f *fixture) status(name string) *model.Status {
	st, err := memStatuses{f.store}.Ensure(f.ctx, name, "")
	require.NoError(f.t, err)
	return st
}

func (f *fixture) addRole(name, status string) *model.Role {
	f.t.Helper()
	role := &model.Role{Name: name, StatusID: &f.status(status).ID}
	require.NoError(f.t, memRoles{f.store}.Create(f.ctx, role))
	return role
}

func (f *fixture) addView(path string) *model.View {
	f.t.Helper()
	view := &model.View{Name: "view " + path, Path: path}
	require.NoError(f.t, memViews{f.store}.Create(f.ctx, view))
	return view
}

func (f *fixture) link(role *model.Role, view *model.View, enabled bool) {
	f.t.Helper()
	require.NoError(f.t, memPerms{f.store}.CreateLinks(f.ctx, []model.RoleViewLink{{RoleID: role.ID, ViewID: view.ID, Enabled: enabled}}))
}

// addUser creates an Active user. role may be nil.
func (f *fixture) addUser(username, plain string, role *model.Role) *model.User {
	f.t.Helper()
	hash, err := f.hasher.Hash(plain)
	require.NoError(f.t, err)
	user := &model.User{
		Name:     username,
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		StatusID: &f.status(model.StatusActive).ID,
	}
	if role != nil {
		user.RoleID = &role.ID
	}
	require.NoError(f.t, memUsers{f.store}.Create(f.ctx, user))
	return user
}

func (f *fixture) setUserStatus(user *model.User, status string) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	st := f.store.users[user.ID]
	id := f.statusIDLocked(status)
	st.StatusID = &id
	f.store.users[user.ID] = st
}

func (f *fixture) statusIDLocked(name string) uuid.UUID {
	for _, st := range f.store.statuses {
		if st.Name == name {
			return st.ID
		}
	}
	st := model.Status{ID: uuid.New(), Name: name}
	f.store.statuses[st.ID] = st
	return st.ID
}

func (f *fixture) login(username, plain string) *LoginResponse {
	f.t.Helper()
	res, err := f.auth.Login(f.ctx, LoginRequest{Username: username, Password: plain})
	require.NoError(f.t, err)
	return res
}

// lastEntry returns the most recent log entry with msg, or nil.
func (f *fixture) lastEntry(msg string) *logrus.Entry {
	entries := f.hook.AllEntries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Message == msg {
			return entries[i]
		}
	}
	return nil
}

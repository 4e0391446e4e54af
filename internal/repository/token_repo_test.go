package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneActiveTokenPerUser(t *testing.T) {
	db := openTestDB(t)
	s := newSeed(t, db)
	ctx := context.Background()
	repo := NewTokenRepository(db)
	alice := s.user("alice")
	bob := s.user("bob")
	exp := time.Now().Add(time.Hour)

	first := s.token(alice.ID, exp)
	s.token(bob.ID, exp)

	err := repo.Create(ctx, &model.Token{UserID: alice.ID, Token: uuid.NewString(), StatusToken: true, Expiration: exp, DateToken: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicate, "second active row for the same user")

	err = repo.Create(ctx, &model.Token{UserID: bob.ID, Token: first.Token, StatusToken: true, Expiration: exp, DateToken: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicate, "token strings are unique")

	n, err := repo.InvalidateAllActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = repo.InvalidateAllActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	second := s.token(alice.ID, exp)
	active, err := repo.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.Token, active[0].Token)

	bobActive, err := repo.ListActive(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobActive, 1, "other users are untouched")
}

func TestIsActive(t *testing.T) {
	db := openTestDB(t)
	s := newSeed(t, db)
	ctx := context.Background()
	repo := NewTokenRepository(db)
	alice := s.user("alice")
	bob := s.user("bob")
	now := time.Now()

	tok := s.token(alice.ID, now.Add(time.Hour))

	ok, err := repo.IsActive(ctx, tok.Token, alice.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsActive(ctx, tok.Token, bob.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "token belongs to someone else")

	ok, err = repo.IsActive(ctx, tok.Token, alice.ID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	ok, err = repo.IsActive(ctx, "unknown", alice.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.Revoke(ctx, tok.Token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	ok, err = repo.IsActive(ctx, tok.Token, alice.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "revoked")
}

func TestInvalidateExpired(t *testing.T) {
	db := openTestDB(t)
	s := newSeed(t, db)
	ctx := context.Background()
	repo := NewTokenRepository(db)
	now := time.Now()

	stale := s.user("stale")
	fresh := s.user("fresh")
	s.token(stale.ID, now.Add(-time.Minute))
	s.token(fresh.ID, now.Add(time.Hour))

	n, err := repo.InvalidateExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	active, err := repo.ListActive(ctx, stale.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	active, err = repo.ListActive(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

// swapSession is the login write path: lock the user, end the active
// session, store the new one.
func swapSession(ctx context.Context, tm TransactionManager, users UserRepository, tokens TokenRepository, userID uuid.UUID) error {
	return tm.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := users.LockByID(txCtx, userID); err != nil {
			return err
		}
		if _, err := tokens.InvalidateAllActive(txCtx, userID); err != nil {
			return err
		}
		return tokens.Create(txCtx, &model.Token{
			UserID:      userID,
			Token:       uuid.NewString(),
			StatusToken: true,
			Expiration:  time.Now().Add(time.Hour),
			DateToken:   time.Now(),
		})
	})
}

func TestConcurrentSessionSwapsLeaveOneActiveRow(t *testing.T) {
	db := openTestDB(t)
	s := newSeed(t, db)
	ctx := context.Background()
	alice := s.user("alice")
	tm := NewTransactionManager(db)
	users := NewUserRepository(db)
	tokens := NewTokenRepository(db)

	const logins = 8
	errs := make([]error, logins)
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = swapSession(ctx, tm, users, tokens, alice.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	active, err := tokens.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	var total int64
	require.NoError(t, db.Model(&model.Token{}).Where("id_user = ?", alice.ID).Count(&total).Error)
	assert.EqualValues(t, logins, total)
}

func TestLockByIDHoldsOtherWriters(t *testing.T) {
	db := openTestDB(t)
	s := newSeed(t, db)
	ctx := context.Background()
	alice := s.user("alice")
	tm := NewTransactionManager(db)
	users := NewUserRepository(db)

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tm.RunInTx(ctx, func(txCtx context.Context) error {
			if _, err := users.LockByID(txCtx, alice.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	select {
	case <-locked:
	case <-time.After(5 * time.Second):
		t.Fatal("first lock never granted")
	}

	done := make(chan error, 1)
	go func() {
		done <- tm.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := users.LockByID(txCtx, alice.ID)
			return err
		})
	}()

	select {
	case <-done:
		t.Fatal("second lock was granted while the first transaction was open")
	case <-time.After(200 * time.Millisecond):
	}
	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second lock never granted")
	}
}

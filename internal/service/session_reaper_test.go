package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepMarksExpiredSessionsInactive(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice", "s3cret!", nil)
	f.login("alice", "s3cret!")

	reaper, err := NewSessionReaper(memTokens{f.store}, "@every 1h", f.metrics, f.log)
	require.NoError(t, err)
	reaper.now = f.clock.Now

	n, err := reaper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.store.activeTokens(alice.ID), 1)

	f.clock.Advance(testTTL + time.Minute)
	n, err = reaper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, f.store.activeTokens(alice.ID))
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewSessionReaper(memTokens{f.store}, "every tuesday", f.metrics, f.log)
	assert.Error(t, err)
}

func TestReaperStartStop(t *testing.T) {
	f := newFixture(t)
	reaper, err := NewSessionReaper(memTokens{f.store}, "@every 1h", f.metrics, f.log)
	require.NoError(t, err)
	reaper.Start()
	select {
	case <-reaper.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

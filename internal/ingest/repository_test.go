package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestRepository_Create(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()

	t.Run("success", func(t *testing.T) {
		s, err := repo.Create("s1", "u1", now)
		require.NoError(t, err)
		require.True(t, s.Live)
		require.Equal(t, now, s.StartTime)
		require.Equal(t, now, s.LastActivity)
		require.Nil(t, s.EndTime)
	})

	t.Run("duplicate_id", func(t *testing.T) {
		_, err := repo.Create("s1", "u2", now)
		require.ErrorIs(t, err, ErrSessionExists)
	})

	t.Run("get_unknown", func(t *testing.T) {
		_, err := repo.Get("missing")
		require.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestRepository_Create_endsOtherLiveSessionsOfUser(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()

	old, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)
	_, err = repo.Create("other-user", "u2", now)
	require.NoError(t, err)

	later := now.Add(30 * time.Second)
	_, err = repo.Create("s2", "u1", later)
	require.NoError(t, err)

	old.mu.Lock()
	require.False(t, old.Live, "older session of the same user must be ended")
	require.NotNil(t, old.EndTime)
	require.Equal(t, later, *old.EndTime)
	old.mu.Unlock()

	otherStatus, err := repo.Status("other-user", later)
	require.NoError(t, err)
	require.True(t, otherStatus.IsLive, "sessions of other users stay live")
}

func TestRepository_End_idempotent(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()
	_, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)

	first, err := repo.End("s1", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, first.IsLive)
	require.NotNil(t, first.EndTime)

	second, err := repo.End("s1", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, *first.EndTime, *second.EndTime, "second end must not move the end time")
	require.Equal(t, first.Duration, second.Duration)

	_, err = repo.End("missing", now)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRepository_Heartbeat(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()
	s, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)

	later := now.Add(10 * time.Second)
	live, err := repo.Heartbeat("s1", later)
	require.NoError(t, err)
	require.True(t, live)
	s.mu.Lock()
	require.Equal(t, later, s.LastActivity)
	s.mu.Unlock()

	_, err = repo.End("s1", later)
	require.NoError(t, err)

	evenLater := later.Add(10 * time.Second)
	live, err = repo.Heartbeat("s1", evenLater)
	require.NoError(t, err)
	require.False(t, live)
	s.mu.Lock()
	require.Equal(t, later, s.LastActivity, "heartbeat on an ended session has no side effects")
	s.mu.Unlock()
}

func TestRepository_Status_touchesOnlyWhileLive(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()
	s, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)

	later := now.Add(45 * time.Second)
	st, err := repo.Status("s1", later)
	require.NoError(t, err)
	require.True(t, st.IsLive)
	require.Equal(t, later, st.LastActivity, "status on a live session counts as activity")

	_, err = repo.End("s1", later)
	require.NoError(t, err)

	evenLater := later.Add(45 * time.Second)
	st, err = repo.Status("s1", evenLater)
	require.NoError(t, err)
	require.Equal(t, later, st.LastActivity)
	s.mu.Lock()
	require.Equal(t, later, s.LastActivity)
	s.mu.Unlock()
}

func TestRepository_ListActive(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()
	_, err := repo.Create("a", "u1", now)
	require.NoError(t, err)
	_, err = repo.Create("b", "u2", now)
	require.NoError(t, err)
	_, err = repo.End("a", now)
	require.NoError(t, err)

	active := repo.ListActive(now)
	require.Len(t, active, 1)
	require.Equal(t, "b", active[0].SessionID)
}

func TestRepository_Sweep(t *testing.T) {
	repo := NewRepository(5)
	now := testClock()
	idle := 2 * time.Minute
	retention := 10 * time.Minute

	t.Run("idle_live_session_is_force_ended", func(t *testing.T) {
		_, err := repo.Create("idle", "u1", now)
		require.NoError(t, err)

		sweepAt := now.Add(idle + time.Second)
		ended, deleted := repo.Sweep(sweepAt, idle, retention)
		require.Equal(t, 1, ended)
		require.Equal(t, 0, deleted)

		st, err := repo.Status("idle", sweepAt)
		require.NoError(t, err)
		require.False(t, st.IsLive)
		require.Equal(t, sweepAt, *st.EndTime)
		require.Empty(t, repo.ListActive(sweepAt))
	})

	t.Run("long_ended_session_is_deleted", func(t *testing.T) {
		sweepAt := now.Add(idle + time.Second).Add(retention + time.Second)
		ended, deleted := repo.Sweep(sweepAt, idle, retention)
		require.Equal(t, 0, ended)
		require.Equal(t, 1, deleted)

		_, err := repo.Status("idle", sweepAt)
		require.ErrorIs(t, err, ErrSessionNotFound)
		require.Equal(t, 0, repo.Count())
	})

	t.Run("fresh_sessions_untouched", func(t *testing.T) {
		_, err := repo.Create("fresh", "u1", now)
		require.NoError(t, err)
		ended, deleted := repo.Sweep(now.Add(time.Second), idle, retention)
		require.Zero(t, ended)
		require.Zero(t, deleted)
		require.Equal(t, 1, repo.Count())
	})
}

func TestRepository_ExportRestore_roundTrip(t *testing.T) {
	repo := NewRepository(2)
	now := testClock()

	s, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)
	s.mu.Lock()
	s.StreamID = "stream-1"
	s.UploadID = "upload-1"
	s.StorageKey = "streams/u1/s1"
	s.Chunks = append(s.Chunks,
		Chunk{Index: 0, Timestamp: now, Size: 3, URL: "https://cdn/seg0.ts"},
		Chunk{Index: 1, Timestamp: now, Size: 3, URL: "https://cdn/seg0.ts"},
		Chunk{Index: 2, Timestamp: now.Add(time.Second), Size: 4, Buffer: []byte{0xde, 0xad, 0xbe, 0xef}},
	)
	s.UploadedSegments = 1
	s.mu.Unlock()
	_, err = repo.Create("s2", "u2", now)
	require.NoError(t, err)
	_, err = repo.End("s2", now.Add(time.Minute))
	require.NoError(t, err)

	snap := repo.Export(now.Add(2 * time.Minute))
	require.Len(t, snap.Sessions, 2)

	restored := NewRepository(2)
	restored.Restore(snap)

	got, err := restored.Get("s1")
	require.NoError(t, err)
	got.mu.Lock()
	require.Equal(t, 1, got.UploadedSegments)
	require.Len(t, got.Chunks, 3)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got.Chunks[2].Buffer, "in-flight buffers survive byte for byte")
	require.Nil(t, got.Chunks[0].Buffer, "committed buffers stay released")
	require.Equal(t, "https://cdn/seg0.ts", got.Chunks[1].URL)
	require.True(t, got.Live)
	got.mu.Unlock()

	st2, err := restored.Status("s2", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, st2.IsLive)
	require.Equal(t, now.Add(time.Minute), *st2.EndTime)
}

func TestRepository_defaultSegmentSize(t *testing.T) {
	repo := NewRepository(0)
	now := testClock()
	_, err := repo.Create("s1", "u1", now)
	require.NoError(t, err)
	st, err := repo.Status("s1", now)
	require.NoError(t, err)
	require.Zero(t, st.BufferSize)
	require.Equal(t, DefaultSegmentSize, repo.segmentSize)
}

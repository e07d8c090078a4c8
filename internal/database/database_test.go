package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/leaflet-importer/internal/entities"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestGetOrCreateRun(t *testing.T) {
	db := setupTestDB(t)

	t.Run("creates a run on first call", func(t *testing.T) {
		run, err := db.GetOrCreateRun("blog.example.net")
		require.NoError(t, err)
		assert.NotZero(t, run.ID)
		assert.Equal(t, "blog.example.net", run.Blog)
		assert.Equal(t, entities.RunStatusRunning, run.Status)
		assert.False(t, run.StartedAt.IsZero())
	})

	t.Run("returns the existing run on later calls", func(t *testing.T) {
		first, err := db.GetOrCreateRun("blog.example.net")
		require.NoError(t, err)

		first.Cursor = 150
		require.NoError(t, db.UpdateRun(first))

		again, err := db.GetOrCreateRun("blog.example.net")
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, 150, again.Cursor)
	})

	t.Run("runs are scoped per blog", func(t *testing.T) {
		other, err := db.GetOrCreateRun("other.example.net")
		require.NoError(t, err)

		existing, err := db.GetRun("blog.example.net")
		require.NoError(t, err)
		assert.NotEqual(t, existing.ID, other.ID)
	})
}

func TestUpsertPost(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	post := &entities.MigrationPost{
		RunID:     run.ID,
		SourceID:  "101",
		SourceURL: "https://blog.example.net/post/101",
		Title:     "First",
		Position:  0,
		Status:    entities.PostStatusPending,
	}
	require.NoError(t, db.UpsertPost(post))
	require.NotZero(t, post.ID)

	t.Run("re-discovery keeps progress fields", func(t *testing.T) {
		stored, err := db.GetPost(run.ID, "101")
		require.NoError(t, err)
		stored.Status = entities.PostStatusSucceeded
		stored.RecordKey = "3kabcdefghij2"
		stored.RecordURI = "at://did:plc:x/pub.leaflet.document/3kabcdefghij2"
		require.NoError(t, db.UpdatePost(stored))

		rediscovered := &entities.MigrationPost{
			RunID:     run.ID,
			SourceID:  "101",
			SourceURL: "https://blog.example.net/post/101/new-slug",
			Title:     "First (edited)",
			Position:  3,
		}
		require.NoError(t, db.UpsertPost(rediscovered))

		assert.Equal(t, stored.ID, rediscovered.ID)
		assert.Equal(t, entities.PostStatusSucceeded, rediscovered.Status)
		assert.Equal(t, "3kabcdefghij2", rediscovered.RecordKey)
		assert.Equal(t, "First (edited)", rediscovered.Title)
		assert.Equal(t, 3, rediscovered.Position)
	})
}

func TestGetPendingPosts(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	seed := []entities.MigrationPost{
		{RunID: run.ID, SourceID: "3", Position: 2, Status: entities.PostStatusPending},
		{RunID: run.ID, SourceID: "1", Position: 0, Status: entities.PostStatusSucceeded},
		{RunID: run.ID, SourceID: "2", Position: 1, Status: entities.PostStatusPublishing},
		{RunID: run.ID, SourceID: "4", Position: 3, Status: entities.PostStatusFailed},
	}
	for i := range seed {
		require.NoError(t, db.UpsertPost(&seed[i]))
	}

	pending, err := db.GetPendingPosts(run.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2, "terminal posts must be excluded")
	// In-flight posts count as pending so a crashed run re-attempts them.
	assert.Equal(t, "2", pending[0].SourceID)
	assert.Equal(t, "3", pending[1].SourceID)
}

func TestRequeueFailedPosts(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	seed := []entities.MigrationPost{
		{RunID: run.ID, SourceID: "1", Position: 0, Status: entities.PostStatusSucceeded, RecordKey: "3kaaaaaaaaaa2"},
		{RunID: run.ID, SourceID: "2", Position: 1, Status: entities.PostStatusFailed, Reason: "gave up after 3 attempts", Attempts: 3},
		{RunID: run.ID, SourceID: "3", Position: 2, Status: entities.PostStatusFailed, Reason: "upstream returned 502", Attempts: 3},
		{RunID: run.ID, SourceID: "4", Position: 3, Status: entities.PostStatusPending},
	}
	for i := range seed {
		require.NoError(t, db.UpsertPost(&seed[i]))
	}

	requeued, err := db.RequeueFailedPosts(run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)

	pending, err := db.GetPendingPosts(run.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3, "failed posts rejoin the pending set")
	for _, post := range pending {
		assert.Equal(t, entities.PostStatusPending, post.Status)
		assert.Empty(t, post.Reason)
		assert.Zero(t, post.Attempts)
	}

	succeeded, err := db.GetPost(run.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, entities.PostStatusSucceeded, succeeded.Status, "succeeded posts are untouched")
}

func TestCountByStatus(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	statuses := []entities.PostStatus{
		entities.PostStatusSucceeded,
		entities.PostStatusSucceeded,
		entities.PostStatusFailed,
		entities.PostStatusPending,
	}
	for i, status := range statuses {
		post := &entities.MigrationPost{
			RunID:    run.ID,
			SourceID: string(rune('a' + i)),
			Position: i,
			Status:   status,
		}
		require.NoError(t, db.UpsertPost(post))
	}

	counts, err := db.CountByStatus(run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[entities.PostStatusSucceeded])
	assert.Equal(t, int64(1), counts[entities.PostStatusFailed])
	assert.Equal(t, int64(1), counts[entities.PostStatusPending])
}

func TestFindKeyOwner(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	post := &entities.MigrationPost{
		RunID:     run.ID,
		SourceID:  "101",
		RecordKey: "3kabcdefghij2",
		Status:    entities.PostStatusSucceeded,
	}
	require.NoError(t, db.UpsertPost(post))

	t.Run("claimed key reports its owner", func(t *testing.T) {
		owner, err := db.FindKeyOwner(run.ID, "3kabcdefghij2")
		require.NoError(t, err)
		assert.Equal(t, "101", owner)
	})

	t.Run("unclaimed key reports empty", func(t *testing.T) {
		owner, err := db.FindKeyOwner(run.ID, "3kzzzzzzzzzz2")
		require.NoError(t, err)
		assert.Empty(t, owner)
	})
}

func TestGetPostsByStatus(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetOrCreateRun("blog.example.net")
	require.NoError(t, err)

	for i, status := range []entities.PostStatus{
		entities.PostStatusSucceeded,
		entities.PostStatusFailed,
		entities.PostStatusSucceeded,
	} {
		post := &entities.MigrationPost{
			RunID:       run.ID,
			SourceID:    string(rune('a' + i)),
			Position:    i,
			Status:      status,
			PublishedAt: time.Now(),
		}
		require.NoError(t, db.UpsertPost(post))
	}

	succeeded, err := db.GetPostsByStatus(run.ID, entities.PostStatusSucceeded)
	require.NoError(t, err)
	require.Len(t, succeeded, 2)
	assert.Equal(t, "a", succeeded[0].SourceID)
	assert.Equal(t, "c", succeeded[1].SourceID)
}

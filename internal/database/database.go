package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/leaflet-importer/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.MigrationRun{},
		&entities.MigrationPost{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreateRun loads the run ledger for a blog, creating it on first
// invocation. A run that previously completed or aborted is reopened so
// the same blog can be migrated incrementally.
func (d *Database) GetOrCreateRun(blog string) (*entities.MigrationRun, error) {
	var run entities.MigrationRun
	result := d.DB.Where("blog = ?", blog).First(&run)
	if result.Error == gorm.ErrRecordNotFound {
		run = entities.MigrationRun{
			Blog:      blog,
			Status:    entities.RunStatusRunning,
			StartedAt: time.Now(),
		}
		if err := d.DB.Create(&run).Error; err != nil {
			return nil, fmt.Errorf("failed to create run for %s: %w", blog, err)
		}
		log.Printf("Created migration run for %s", blog)
		return &run, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &run, nil
}

func (d *Database) GetRun(blog string) (*entities.MigrationRun, error) {
	var run entities.MigrationRun
	err := d.DB.Where("blog = ?", blog).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (d *Database) UpdateRun(run *entities.MigrationRun) error {
	return d.DB.Save(run).Error
}

// UpsertPost records a discovered post in the ledger. Posts already seen
// in an earlier invocation keep their status and record key; only the
// source-side fields are refreshed.
func (d *Database) UpsertPost(post *entities.MigrationPost) error {
	var existing entities.MigrationPost
	result := d.DB.Where("run_id = ? AND source_id = ?", post.RunID, post.SourceID).First(&existing)
	if result.Error == gorm.ErrRecordNotFound {
		return d.DB.Create(post).Error
	}
	if result.Error != nil {
		return result.Error
	}

	existing.SourceURL = post.SourceURL
	existing.Title = post.Title
	existing.PublishedAt = post.PublishedAt
	existing.Position = post.Position
	if err := d.DB.Save(&existing).Error; err != nil {
		return err
	}
	*post = existing
	return nil
}

func (d *Database) GetPost(runID uint, sourceID string) (*entities.MigrationPost, error) {
	var post entities.MigrationPost
	err := d.DB.Where("run_id = ? AND source_id = ?", runID, sourceID).First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (d *Database) UpdatePost(post *entities.MigrationPost) error {
	return d.DB.Save(post).Error
}

// GetPendingPosts returns the posts that still need work, in source feed
// order. Posts stranded in an in-flight state by a crash are included:
// the deterministic record key makes re-running them an overwrite, not a
// duplicate.
func (d *Database) GetPendingPosts(runID uint) ([]entities.MigrationPost, error) {
	var posts []entities.MigrationPost
	err := d.DB.
		Where("run_id = ? AND status NOT IN ?", runID,
			[]entities.PostStatus{entities.PostStatusSucceeded, entities.PostStatusFailed}).
		Order("position ASC").
		Find(&posts).Error
	return posts, err
}

// RequeueFailedPosts returns every failed post in a run to the pending
// state with a fresh attempt budget and no failure reason. Called when a
// run starts so posts that failed on an earlier invocation are retried
// instead of staying stranded. Reports how many posts were requeued.
func (d *Database) RequeueFailedPosts(runID uint) (int64, error) {
	result := d.DB.Model(&entities.MigrationPost{}).
		Where("run_id = ? AND status = ?", runID, entities.PostStatusFailed).
		Updates(map[string]any{
			"status":   entities.PostStatusPending,
			"reason":   "",
			"attempts": 0,
		})
	return result.RowsAffected, result.Error
}

func (d *Database) GetPostsByStatus(runID uint, status entities.PostStatus) ([]entities.MigrationPost, error) {
	var posts []entities.MigrationPost
	err := d.DB.
		Where("run_id = ? AND status = ?", runID, status).
		Order("position ASC").
		Find(&posts).Error
	return posts, err
}

func (d *Database) GetAllPosts(runID uint) ([]entities.MigrationPost, error) {
	var posts []entities.MigrationPost
	err := d.DB.Where("run_id = ?", runID).Order("position ASC").Find(&posts).Error
	return posts, err
}

// CountByStatus returns post counts for a run keyed by status.
func (d *Database) CountByStatus(runID uint) (map[entities.PostStatus]int64, error) {
	type row struct {
		Status entities.PostStatus
		Count  int64
	}
	var rows []row
	err := d.DB.Model(&entities.MigrationPost{}).
		Select("status, COUNT(*) as count").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[entities.PostStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// FindKeyOwner returns the source ID that first claimed a record key
// within a run, or "" if the key is unclaimed. Used to detect key
// collisions across distinct posts before any write happens.
func (d *Database) FindKeyOwner(runID uint, recordKey string) (string, error) {
	var post entities.MigrationPost
	err := d.DB.Where("run_id = ? AND record_key = ?", runID, recordKey).First(&post).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return post.SourceID, nil
}

package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/leaflet-importer/internal/tasks"
)

// MigrationSyncScheduler periodically enqueues a migration task so new
// source posts get picked up and published. Each tick resumes the
// blog's persisted run; posts already migrated are skipped.
type MigrationSyncScheduler struct {
	taskClient *tasks.Client
	blog       string
	schedule   string

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

func NewMigrationSyncScheduler(taskClient *tasks.Client, blog, schedule string) *MigrationSyncScheduler {
	return &MigrationSyncScheduler{
		taskClient: taskClient,
		blog:       blog,
		schedule:   schedule,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler. A missing blog or schedule disables it
// without error so the server can run in on-demand mode.
func (s *MigrationSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.blog == "" {
		log.Printf("Migration sync scheduler: no blog configured, disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.enqueueSync()
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Migration sync scheduler: started with schedule '%s' for %s", s.schedule, s.blog)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for a tick in flight.
func (s *MigrationSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Migration sync scheduler: stopped")
}

// RunNow enqueues a sync immediately, outside the schedule.
func (s *MigrationSyncScheduler) RunNow() error {
	s.enqueueSync()
	return nil
}

func (s *MigrationSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sync will be enqueued.
func (s *MigrationSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *MigrationSyncScheduler) enqueueSync() {
	if _, err := s.taskClient.Add(tasks.MigrateBlogTask{Blog: s.blog}).Save(); err != nil {
		log.Printf("Migration sync: failed to enqueue task for %s: %v", s.blog, err)
		return
	}
	log.Printf("Migration sync: enqueued migration task for %s", s.blog)
}

package migration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mrlokans/leaflet-importer/internal/atproto"
	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/database"
	"github.com/mrlokans/leaflet-importer/internal/entities"
	"github.com/mrlokans/leaflet-importer/internal/identity"
	"github.com/mrlokans/leaflet-importer/internal/tumblr"
)

// SourceReader enumerates posts from the origin blog in pages.
type SourceReader interface {
	FetchPage(ctx context.Context, offset int) (*tumblr.Page, error)
}

// Publisher is the destination-repo surface the orchestrator writes through.
type Publisher interface {
	PutRecord(ctx context.Context, session *atproto.Session, collection, rkey string, record any) (*atproto.WriteResult, error)
}

// MediaResolver uploads the image blocks of a document, degrading
// unfetchable ones in place.
type MediaResolver interface {
	Resolve(ctx context.Context, session *atproto.Session, doc *converter.Document) ([]string, error)
}

// ErrRunAborted is returned when the run hit an unrecoverable condition
// and must not be resumed without operator intervention.
var ErrRunAborted = errors.New("migration run aborted")

// ErrRunPaused is returned when the run stopped cleanly between posts,
// either on request or because the session expired. Resuming picks up
// from the first unfinished post.
var ErrRunPaused = errors.New("migration run paused")

// Orchestrator drives one blog's migration: discovery, conversion,
// media upload and publishing, with all progress persisted so any
// interruption is resumable.
type Orchestrator struct {
	db       *database.Database
	reader   SourceReader
	resolver MediaResolver
	client   Publisher
	session  *atproto.Session

	blog        string
	publication string
	authorDID   string
	policy      RetryPolicy
	convert     func(body string) (*converter.Document, error)

	pauseRequested atomic.Bool
}

type Config struct {
	Blog        string
	Publication string
	AuthorDID   string
	Policy      RetryPolicy

	// Convert overrides the HTML conversion stage. Used when the source
	// bodies are already markdown (archive replay).
	Convert func(body string) (*converter.Document, error)
}

func NewOrchestrator(db *database.Database, reader SourceReader, resolver MediaResolver, client Publisher, session *atproto.Session, cfg Config) *Orchestrator {
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	convert := cfg.Convert
	if convert == nil {
		convert = converter.Convert
	}
	return &Orchestrator{
		db:          db,
		reader:      reader,
		resolver:    resolver,
		client:      client,
		session:     session,
		blog:        cfg.Blog,
		publication: cfg.Publication,
		authorDID:   cfg.AuthorDID,
		policy:      policy,
		convert:     convert,
	}
}

// RequestPause asks the run to stop after the post currently in flight.
// Safe to call from another goroutine.
func (o *Orchestrator) RequestPause() {
	o.pauseRequested.Store(true)
}

// Run executes the migration until every discovered post reaches a
// terminal state, a pause is requested, or an abort condition hits.
func (o *Orchestrator) Run(ctx context.Context) error {
	registerActive(o.blog, o)
	defer unregisterActive(o.blog)

	run, err := o.db.GetOrCreateRun(o.blog)
	if err != nil {
		return fmt.Errorf("failed to load run state: %w", err)
	}

	if run.Status == entities.RunStatusCompleted {
		// A finished run re-discovers from the top so newly published
		// source posts are picked up; succeeded posts stay skipped.
		run.Cursor = 0
		run.CompletedAt = nil
	}
	// Posts that failed on an earlier invocation get another chance:
	// the cause may have been a since-resolved outage, and succeeded
	// posts are still skipped either way.
	requeued, err := o.db.RequeueFailedPosts(run.ID)
	if err != nil {
		return fmt.Errorf("failed to requeue failed posts: %w", err)
	}
	if requeued > 0 {
		log.Printf("Re-queueing %d previously failed posts for %s", requeued, o.blog)
		run.Failed = 0
	}

	run.Status = entities.RunStatusRunning
	run.Error = ""
	if err := o.db.UpdateRun(run); err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}

	if err := o.discover(ctx, run); err != nil {
		return o.stopRun(run, err)
	}

	posts, err := o.db.GetPendingPosts(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load pending posts: %w", err)
	}
	log.Printf("Migration for %s: %d posts pending", o.blog, len(posts))

	for i := range posts {
		if err := o.checkpoint(ctx, run); err != nil {
			return err
		}
		// Attempts accumulated before a pause belong to that invocation;
		// each resume starts the post with a full retry budget.
		posts[i].Attempts = 0
		if err := o.processPost(ctx, run, &posts[i]); err != nil {
			return o.stopRun(run, err)
		}
	}

	run.Status = entities.RunStatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := o.db.UpdateRun(run); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	log.Printf("Migration for %s completed: %d succeeded, %d failed", o.blog, run.Succeeded, run.Failed)
	return nil
}

// discover walks the source feed page by page from the persisted cursor
// and records every post in the ledger before any publishing starts.
func (o *Orchestrator) discover(ctx context.Context, run *entities.MigrationRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := o.fetchPageWithRetry(ctx, run.Cursor)
		if err != nil {
			return fmt.Errorf("failed to fetch source page at offset %d: %w", run.Cursor, err)
		}

		run.TotalPosts = page.Total
		for i, post := range page.Posts {
			row := &entities.MigrationPost{
				RunID:       run.ID,
				SourceID:    post.ID,
				SourceURL:   post.URL,
				Title:       post.Title,
				PublishedAt: post.PublishedAt,
				Position:    run.Cursor + i,
				Status:      entities.PostStatusPending,
			}
			if err := o.db.UpsertPost(row); err != nil {
				return fmt.Errorf("failed to record post %s: %w", post.ID, err)
			}
		}

		run.Cursor += len(page.Posts)
		if err := o.db.UpdateRun(run); err != nil {
			return fmt.Errorf("failed to persist cursor: %w", err)
		}

		if len(page.Posts) == 0 || run.Cursor >= page.Total {
			return nil
		}
	}
}

func (o *Orchestrator) fetchPageWithRetry(ctx context.Context, offset int) (*tumblr.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, o.policy.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		page, err := o.reader.FetchPage(ctx, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err
		log.Printf("Source fetch at offset %d failed (attempt %d/%d): %v", offset, attempt, o.policy.MaxAttempts, err)
	}
	return nil, lastErr
}

// processPost runs one post through the pipeline, retrying transient
// failures and classifying permanent ones. It returns a non-nil error
// only for run-level conditions (abort, pause, context cancellation).
func (o *Orchestrator) processPost(ctx context.Context, run *entities.MigrationRun, post *entities.MigrationPost) error {
	for {
		post.Attempts++
		err := o.attemptPost(ctx, run, post)
		if err == nil {
			post.Status = entities.PostStatusSucceeded
			post.Reason = ""
			run.Succeeded++
			if dbErr := o.savePostAndRun(run, post); dbErr != nil {
				return dbErr
			}
			log.Printf("Published %s as %s", post.SourceURL, post.RecordURI)
			return nil
		}

		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err

		case errors.Is(err, atproto.ErrSessionExpired):
			// Credentials are gone; nothing automated can fix this.
			return fmt.Errorf("%w: session expired, re-authenticate and resume", ErrRunPaused)

		case isCollision(err):
			post.Status = entities.PostStatusFailed
			post.Reason = err.Error()
			run.Failed++
			if dbErr := o.savePostAndRun(run, post); dbErr != nil {
				return dbErr
			}
			return fmt.Errorf("%w: %v", ErrRunAborted, err)

		case errors.Is(err, atproto.ErrRateLimited):
			// Stall without consuming an attempt.
			post.Attempts--
			log.Printf("Rate limited, stalling %v before retrying %s", o.policy.RateLimitWait, post.SourceURL)
			if sleepErr := sleepCtx(ctx, o.policy.RateLimitWait); sleepErr != nil {
				return sleepErr
			}
			continue

		case isPermanent(err):
			post.Status = entities.PostStatusFailed
			post.Reason = err.Error()
			run.Failed++
			if dbErr := o.savePostAndRun(run, post); dbErr != nil {
				return dbErr
			}
			log.Printf("Post %s failed permanently: %v", post.SourceURL, err)
			return nil

		default:
			// Transient; retry with backoff until attempts run out.
			if post.Attempts >= o.policy.MaxAttempts {
				post.Status = entities.PostStatusFailed
				post.Reason = fmt.Sprintf("gave up after %d attempts: %v", post.Attempts, err)
				run.Failed++
				if dbErr := o.savePostAndRun(run, post); dbErr != nil {
					return dbErr
				}
				log.Printf("Post %s failed after %d attempts: %v", post.SourceURL, post.Attempts, err)
				return nil
			}
			log.Printf("Post %s attempt %d failed, retrying: %v", post.SourceURL, post.Attempts, err)
			if sleepErr := sleepCtx(ctx, o.policy.Delay(post.Attempts)); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

// attemptPost is a single pass through convert → upload → publish for
// one post. Every stage transition is persisted before the stage runs.
func (o *Orchestrator) attemptPost(ctx context.Context, run *entities.MigrationRun, post *entities.MigrationPost) error {
	source, err := o.fetchPost(ctx, post)
	if err != nil {
		return err
	}

	post.Status = entities.PostStatusConverting
	if err := o.db.UpdatePost(post); err != nil {
		return err
	}

	doc, err := o.convert(source.Body)
	if err != nil {
		return err
	}
	doc.DropLeadingTitle(source.Title)

	if post.RecordKey == "" {
		key, err := identity.DeriveKey(post.SourceID, post.SourceURL)
		if err != nil {
			return &converter.MalformedSourceError{Err: err}
		}
		owner, err := o.db.FindKeyOwner(run.ID, key)
		if err != nil {
			return err
		}
		if owner != "" && owner != post.SourceID {
			return &identity.CollisionError{Key: key, FirstSourceID: owner, SecondSourceID: post.SourceID}
		}
		post.RecordKey = key
	}

	post.Status = entities.PostStatusUploading
	if err := o.db.UpdatePost(post); err != nil {
		return err
	}

	notes, err := o.resolver.Resolve(ctx, o.session, doc)
	if err != nil {
		return err
	}
	if len(notes) > 0 {
		post.DegradedImages = strings.Join(notes, "\n")
	}

	post.Status = entities.PostStatusPublishing
	post.BlockCount = len(doc.Blocks)
	if err := o.db.UpdatePost(post); err != nil {
		return err
	}

	record, err := atproto.BuildDocumentRecord(atproto.DocumentMeta{
		DID:         o.authorDID,
		Title:       source.Title,
		Publication: o.publication,
		PublishedAt: source.PublishedAt,
	}, doc)
	if err != nil {
		return err
	}

	result, err := o.client.PutRecord(ctx, o.session, atproto.DocumentCollection, post.RecordKey, record)
	if err != nil {
		return err
	}
	post.RecordURI = result.URI
	return nil
}

// fetchPost re-reads the post's source page to get its body. Bodies are
// not persisted in the ledger; the page offset makes the lookup cheap
// and keeps the database small.
func (o *Orchestrator) fetchPost(ctx context.Context, post *entities.MigrationPost) (*tumblr.Post, error) {
	pageOffset := (post.Position / tumblr.PostsPerRequest) * tumblr.PostsPerRequest
	page, err := o.reader.FetchPage(ctx, pageOffset)
	if err != nil {
		return nil, err
	}
	for i := range page.Posts {
		if page.Posts[i].ID == post.SourceID {
			return &page.Posts[i], nil
		}
	}
	// The post moved between pages since discovery (source edited).
	// Scan adjacent pages before falling back to a full walk.
	for _, offset := range []int{pageOffset - tumblr.PostsPerRequest, pageOffset + tumblr.PostsPerRequest} {
		if offset < 0 {
			continue
		}
		page, err := o.reader.FetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for i := range page.Posts {
			if page.Posts[i].ID == post.SourceID {
				return &page.Posts[i], nil
			}
		}
	}
	// Last resort: walk the whole feed from the top. Sources that serve
	// everything in one page (archive replay, RSS) only answer at offset
	// zero, so position arithmetic cannot locate their posts.
	for offset := 0; ; {
		page, err := o.reader.FetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for i := range page.Posts {
			if page.Posts[i].ID == post.SourceID {
				return &page.Posts[i], nil
			}
		}
		offset += len(page.Posts)
		if len(page.Posts) == 0 || offset >= page.Total {
			break
		}
	}
	return nil, &converter.MalformedSourceError{Err: fmt.Errorf("post %s no longer present in source feed", post.SourceID)}
}

// checkpoint runs between posts: honors context cancellation and
// cooperative pause requests. A pause leaves the run resumable.
func (o *Orchestrator) checkpoint(ctx context.Context, run *entities.MigrationRun) error {
	if err := ctx.Err(); err != nil {
		return o.stopRun(run, err)
	}
	if o.pauseRequested.Load() {
		o.pauseRequested.Store(false)
		return o.stopRun(run, fmt.Errorf("%w: pause requested", ErrRunPaused))
	}
	return nil
}

// stopRun persists the stop reason and maps it to a run status:
// aborts are sticky, everything else pauses for later resume.
func (o *Orchestrator) stopRun(run *entities.MigrationRun, cause error) error {
	if errors.Is(cause, ErrRunAborted) {
		run.Status = entities.RunStatusAborted
	} else {
		run.Status = entities.RunStatusPaused
	}
	run.Error = cause.Error()
	if err := o.db.UpdateRun(run); err != nil {
		log.Printf("Failed to persist run stop state: %v", err)
	}
	return cause
}

func (o *Orchestrator) savePostAndRun(run *entities.MigrationRun, post *entities.MigrationPost) error {
	if err := o.db.UpdatePost(post); err != nil {
		return err
	}
	return o.db.UpdateRun(run)
}

func isCollision(err error) bool {
	var collision *identity.CollisionError
	return errors.As(err, &collision)
}

// isPermanent reports whether the failure cannot be fixed by retrying:
// unparseable source content or a schema rejection from the destination.
func isPermanent(err error) bool {
	var malformed *converter.MalformedSourceError
	if errors.As(err, &malformed) {
		return true
	}
	var schema *atproto.SchemaError
	return errors.As(err, &schema)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

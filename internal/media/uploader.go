package media

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/leaflet-importer/internal/atproto"
	"github.com/mrlokans/leaflet-importer/internal/converter"
	"github.com/mrlokans/leaflet-importer/internal/relay"
)

const defaultConcurrency = 4

// BlobStore is the subset of the publishing client the uploader needs.
type BlobStore interface {
	UploadBlob(ctx context.Context, session *atproto.Session, data []byte, contentType string) (*atproto.BlobUpload, error)
}

// Uploader resolves the image blocks of a converted document into
// uploaded blobs. Images that cannot be fetched or uploaded are
// degraded in place to link-fallback paragraphs rather than failing
// the whole post.
type Uploader struct {
	fetcher     relay.Fetcher
	store       BlobStore
	concurrency int
}

func NewUploader(fetcher relay.Fetcher, store BlobStore) *Uploader {
	return &Uploader{
		fetcher:     fetcher,
		store:       store,
		concurrency: defaultConcurrency,
	}
}

func (u *Uploader) WithConcurrency(n int) *Uploader {
	if n > 0 {
		u.concurrency = n
	}
	return u
}

// Resolve uploads every unresolved image block of doc. It returns the
// list of degradation notes (one per image that fell back to a link).
// Retryable publish-side errors abort the whole pass so the caller can
// back off and retry the post; source-side fetch failures only degrade
// the affected block.
func (u *Uploader) Resolve(ctx context.Context, session *atproto.Session, doc *converter.Document) ([]string, error) {
	indexes := doc.UnresolvedImages()
	if len(indexes) == 0 {
		return nil, nil
	}

	var (
		mu    sync.Mutex
		notes []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for _, idx := range indexes {
		idx := idx
		g.Go(func() error {
			url := doc.Blocks[idx].ImageURL
			blob, err := u.uploadOne(ctx, session, url)
			if err != nil {
				if atproto.IsRetryable(err) {
					return err
				}
				log.Printf("Degrading image %s to link: %v", url, err)
				mu.Lock()
				doc.DegradeImage(idx)
				notes = append(notes, fmt.Sprintf("image unavailable, kept as link: %s", url))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			doc.Blocks[idx].Blob = blob
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return notes, err
	}
	return notes, nil
}

func (u *Uploader) uploadOne(ctx context.Context, session *atproto.Session, url string) (*converter.BlobRef, error) {
	data, contentType, err := u.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetching %s: empty response", url)
	}
	upload, err := u.store.UploadBlob(ctx, session, data, detectMimeType(contentType, data))
	if err != nil {
		return nil, err
	}
	return &converter.BlobRef{
		CID:      upload.Blob.Ref.Link,
		MimeType: upload.Blob.MimeType,
		Size:     upload.Blob.Size,
	}, nil
}

// detectMimeType prefers the upstream Content-Type header, falls back to
// content sniffing, and defaults to JPEG when neither yields a usable
// image type.
func detectMimeType(header string, data []byte) string {
	if mt := normalizeMime(header); mt != "" {
		return mt
	}
	if mt := normalizeMime(http.DetectContentType(data)); mt != "" {
		return mt
	}
	return "image/jpeg"
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, ";"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if strings.HasPrefix(value, "image/") {
		return value
	}
	return ""
}

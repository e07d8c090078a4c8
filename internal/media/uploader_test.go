package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mrlokans/leaflet-importer/internal/atproto"
	"github.com/mrlokans/leaflet-importer/internal/converter"
)

type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) ([]byte, string, error) {
	if err, ok := f.errs[target]; ok {
		return nil, "", err
	}
	return []byte(f.bodies[target]), "image/png", nil
}

type fakeStore struct {
	err     error
	uploads int
}

func (s *fakeStore) UploadBlob(_ context.Context, _ *atproto.Session, data []byte, contentType string) (*atproto.BlobUpload, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.uploads++
	var upload atproto.BlobUpload
	upload.Blob.Ref.Link = "bafy-" + contentType
	upload.Blob.MimeType = contentType
	upload.Blob.Size = int64(len(data))
	return &upload, nil
}

func imageDoc(urls ...string) *converter.Document {
	doc := &converter.Document{}
	for _, u := range urls {
		doc.Blocks = append(doc.Blocks, converter.Block{Kind: converter.KindImage, ImageURL: u})
	}
	return doc
}

func TestResolveUploadsImages(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://media.example/1.png": "png-one",
		"https://media.example/2.png": "png-two",
	}}
	store := &fakeStore{}
	doc := imageDoc("https://media.example/1.png", "https://media.example/2.png")

	uploader := NewUploader(fetcher, store).WithConcurrency(1)
	notes, err := uploader.Resolve(context.Background(), &atproto.Session{}, doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes = %v", notes)
	}
	if store.uploads != 2 {
		t.Errorf("uploads = %d, want 2", store.uploads)
	}
	if len(doc.UnresolvedImages()) != 0 {
		t.Errorf("unresolved = %v", doc.UnresolvedImages())
	}
	if doc.Blocks[0].Blob.CID != "bafy-image/png" || doc.Blocks[0].Blob.Size != int64(len("png-one")) {
		t.Errorf("blob = %+v", doc.Blocks[0].Blob)
	}
}

func TestResolveDegradesUnfetchableImage(t *testing.T) {
	fetcher := &fakeFetcher{
		bodies: map[string]string{"https://media.example/ok.png": "png"},
		errs:   map[string]error{"https://media.example/gone.png": errors.New("HTTP 404")},
	}
	store := &fakeStore{}
	doc := imageDoc("https://media.example/gone.png", "https://media.example/ok.png")

	notes, err := NewUploader(fetcher, store).WithConcurrency(1).Resolve(context.Background(), &atproto.Session{}, doc)
	if err != nil {
		t.Fatal(err)
	}

	if len(notes) != 1 || !strings.Contains(notes[0], "https://media.example/gone.png") {
		t.Errorf("notes = %v", notes)
	}
	if len(doc.UnresolvedImages()) != 0 {
		t.Error("degraded block should no longer count as unresolved")
	}
	if doc.Blocks[0].Kind != converter.KindParagraph {
		t.Errorf("degraded block kind = %v", doc.Blocks[0].Kind)
	}
	if doc.Blocks[1].Blob == nil {
		t.Error("healthy image should still be uploaded")
	}
}

func TestResolveAbortsOnRetryableUploadError(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{"https://media.example/1.png": "png"}}
	store := &fakeStore{err: atproto.ErrRateLimited}
	doc := imageDoc("https://media.example/1.png")

	_, err := NewUploader(fetcher, store).Resolve(context.Background(), &atproto.Session{}, doc)
	if !errors.Is(err, atproto.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(doc.UnresolvedImages()) != 1 {
		t.Error("image should stay unresolved after an aborted pass")
	}
}

func TestResolveNoImages(t *testing.T) {
	doc := &converter.Document{Blocks: []converter.Block{
		{Kind: converter.KindParagraph, Text: "no media here"},
	}}
	notes, err := NewUploader(&fakeFetcher{}, &fakeStore{}).Resolve(context.Background(), &atproto.Session{}, doc)
	if err != nil || notes != nil {
		t.Errorf("got notes %v, err %v", notes, err)
	}
}

func TestDetectMimeType(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name   string
		header string
		data   []byte
		want   string
	}{
		{"header wins", "image/webp", []byte("data"), "image/webp"},
		{"header with params", "image/gif; charset=binary", []byte("data"), "image/gif"},
		{"sniffed from content", "text/html", pngHeader, "image/png"},
		{"fallback", "application/octet-stream", []byte("plain text"), "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMimeType(tt.header, tt.data); got != tt.want {
				t.Errorf("detectMimeType(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

// Package atproto is the write side of the migration: an XRPC client
// for the destination repository offering upsert-style record writes,
// blob uploads, and the listing/deletion operations the maintenance
// commands need. Responses are classified into the retry taxonomy the
// orchestrator's backoff policy works with.
package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DocumentCollection is the destination lexicon collection migrated
	// posts are written to.
	DocumentCollection = "pub.leaflet.document"

	defaultTimeout = 60 * time.Second
)

// Client talks XRPC to one PDS.
type Client struct {
	httpClient *http.Client
	pds        string
}

// NewClient creates a client for the given PDS base URL
// (e.g. "https://bsky.social").
func NewClient(pds string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		pds:        strings.TrimRight(pds, "/"),
	}
}

// WriteResult is the acknowledgment of a successful record write. The
// engine's contract ends here: URI and CID prove the record is durably
// in the repository, regardless of downstream index visibility.
type WriteResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// xrpcError is the PDS error envelope.
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PutRecord writes a record at collection/rkey with upsert semantics:
// an existing record under the same key is replaced in place. Validation
// is disabled because the document lexicon is not registered with every
// PDS; schema rejections still surface for structurally invalid records.
func (c *Client) PutRecord(ctx context.Context, session *Session, collection, rkey string, record any) (*WriteResult, error) {
	payload, err := json.Marshal(map[string]any{
		"repo":       session.DID,
		"collection": collection,
		"rkey":       rkey,
		"record":     record,
		"validate":   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	body, err := c.doAuthorized(ctx, session, http.MethodPost, "com.atproto.repo.putRecord", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var result WriteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode write result: %w", err)
	}
	return &result, nil
}

// BlobUpload is the PDS's response to an uploadBlob call.
type BlobUpload struct {
	Blob struct {
		Ref struct {
			Link string `json:"$link"`
		} `json:"ref"`
		MimeType string `json:"mimeType"`
		Size     int64  `json:"size"`
	} `json:"blob"`
}

// UploadBlob uploads binary media and returns the opaque blob handle to
// embed in place of the external URL.
func (c *Client) UploadBlob(ctx context.Context, session *Session, data []byte, contentType string) (*BlobUpload, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body, err := c.doAuthorized(ctx, session, http.MethodPost, "com.atproto.repo.uploadBlob", contentType, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var upload BlobUpload
	if err := json.Unmarshal(body, &upload); err != nil {
		return nil, fmt.Errorf("failed to decode blob upload: %w", err)
	}
	return &upload, nil
}

// Record is one listed repository record.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid"`
	Value json.RawMessage `json:"value"`
}

// ListRecords pages through a collection. Returns the records and the
// cursor for the next page; an empty cursor means the listing is
// exhausted.
func (c *Client) ListRecords(ctx context.Context, session *Session, collection, cursor string, limit int) ([]Record, string, error) {
	params := url.Values{}
	params.Set("repo", session.DID)
	params.Set("collection", collection)
	params.Set("limit", fmt.Sprintf("%d", limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doAuthorized(ctx, session, http.MethodGet, "com.atproto.repo.listRecords?"+params.Encode(), "", nil)
	if err != nil {
		return nil, "", err
	}

	var listing struct {
		Cursor  string   `json:"cursor"`
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, "", fmt.Errorf("failed to decode record listing: %w", err)
	}
	return listing.Records, listing.Cursor, nil
}

// GetRecord fetches a single record, or nil when it does not exist.
func (c *Client) GetRecord(ctx context.Context, session *Session, collection, rkey string) (*Record, error) {
	params := url.Values{}
	params.Set("repo", session.DID)
	params.Set("collection", collection)
	params.Set("rkey", rkey)

	body, err := c.doAuthorized(ctx, session, http.MethodGet, "com.atproto.repo.getRecord?"+params.Encode(), "", nil)
	if err != nil {
		var schemaErr *SchemaError
		// getRecord reports a missing record as a 400 RecordNotFound.
		if errors.As(err, &schemaErr) && schemaErr.Code == "RecordNotFound" {
			return nil, nil
		}
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &record, nil
}

// DeleteRecord removes a record from the repository.
func (c *Client) DeleteRecord(ctx context.Context, session *Session, collection, rkey string) error {
	payload, err := json.Marshal(map[string]string{
		"repo":       session.DID,
		"collection": collection,
		"rkey":       rkey,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	_, err = c.doAuthorized(ctx, session, http.MethodPost, "com.atproto.repo.deleteRecord", "application/json", bytes.NewReader(payload))
	return err
}

// doAuthorized performs one authenticated XRPC call and classifies the
// response. The returned bytes are the full response body on success.
func (c *Client) doAuthorized(ctx context.Context, session *Session, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.pds+"/xrpc/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessJwt)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrSessionExpired

	case resp.StatusCode >= 500:
		return nil, &ServerError{StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusBadRequest:
		var xerr xrpcError
		if json.Unmarshal(respBody, &xerr) == nil && xerr.Error != "" {
			if xerr.Error == "ExpiredToken" || xerr.Error == "InvalidToken" {
				return nil, ErrSessionExpired
			}
			return nil, &SchemaError{Code: xerr.Error, Message: xerr.Message}
		}
		return nil, &SchemaError{Code: "BadRequest", Message: string(respBody)}

	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}

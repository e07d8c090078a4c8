package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Session is the authenticated capability handed to the publish and
// media-upload paths. It is scoped to one run: the engine never persists
// it and never sends it through the relay.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// CreateSession exchanges a handle and app password for a session on the
// given PDS. The password is used for this one request and not retained.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (*Session, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.pds+"/xrpc/com.atproto.server.createSession", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("authentication failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// ResolveHandle resolves a handle to its DID and PDS endpoint via the
// entryway and the PLC directory. Used at startup so writes go to the
// account's own PDS rather than assuming the entryway hosts it.
func ResolveHandle(ctx context.Context, httpClient *http.Client, entryway, handle string) (did, pds string, err error) {
	resolveURL := entryway + "/xrpc/com.atproto.identity.resolveHandle?handle=" + url.QueryEscape(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("resolve handle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("resolve handle: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var resolved struct {
		DID string `json:"did"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resolved); err != nil {
		return "", "", fmt.Errorf("resolve handle: decode: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, "https://plc.directory/"+resolved.DID, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err = httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch DID document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch DID document: HTTP %d", resp.StatusCode)
	}

	var didDoc struct {
		Service []struct {
			Type            string `json:"type"`
			ServiceEndpoint string `json:"serviceEndpoint"`
		} `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&didDoc); err != nil {
		return "", "", fmt.Errorf("fetch DID document: decode: %w", err)
	}
	for _, svc := range didDoc.Service {
		if svc.Type == "AtprotoPersonalDataServer" {
			return resolved.DID, svc.ServiceEndpoint, nil
		}
	}
	return "", "", fmt.Errorf("DID document for %s lists no PDS", handle)
}

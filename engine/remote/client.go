// Package remote talks to a workflow engine over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
)

const (
	InstantiatePath = "/instantiate"

	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Request is the body posted to the engine.
type Request struct {
	URI      string         `json:"uri"`
	User     *identity.User `json:"user"`
	Readonly bool           `json:"readonly"`
}

// Client implements engine.Engine. A 204 response is an empty workspace.
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Set(key, value)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		headers: http.Header{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ engine.Engine = (*Client)(nil)

func (c *Client) Instantiate(ctx context.Context, uri string, user *identity.User, readonly bool) (*engine.Workspace, error) {
	body, err := json.Marshal(Request{URI: uri, User: user, Readonly: readonly})
	if err != nil {
		return nil, automate.NewError(automate.ErrEngineFailure, "encode instantiate request", err, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+InstantiatePath, bytes.NewReader(body))
	if err != nil {
		return nil, automate.NewError(automate.ErrEngineFailure, "build instantiate request", err, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, automate.NewError(automate.ErrEngineFailure, "instantiate request failed", err, map[string]any{"uri": uri})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, automate.NewError(
			automate.ErrEngineFailure,
			fmt.Sprintf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			nil,
			map[string]any{"uri": uri, "status": resp.StatusCode},
		)
	}

	var ws engine.Workspace
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&ws); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, automate.NewError(automate.ErrEngineFailure, "decode workspace", err, map[string]any{"uri": uri})
	}
	return &ws, nil
}

// Copyright 2023 The recfs Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rec is the client for the remote storage REST API. It attaches
// the auth token to every request, refreshes the token once on a 401 and
// retries, and decodes the JSON envelope all endpoints share.
package rec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/recfs/recfs/internal/auth"
	"github.com/recfs/recfs/internal/logger"
)

// DefaultEndpoint is the production API base URL.
const DefaultEndpoint = "https://recapi.ustc.edu.cn/api/"

// DefaultTimeout is the single upper bound applied to every request.
const DefaultTimeout = 120 * time.Second

const authHeader = "X-auth-token"

// A TokenStore persists the credential pair when the client refreshes it.
type TokenStore interface {
	Save(auth.Token) error
}

// A Client talks to the remote API. Safe for concurrent use.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client

	// Receives refreshed tokens; may be nil.
	store TokenStore

	// Held only across token mutation. Reads clone the current value.
	mu    sync.Mutex
	token auth.Token
}

// NewClient creates a client for the API rooted at endpoint. A zero timeout
// selects DefaultTimeout.
func NewClient(endpoint string, token auth.Token, store TokenStore, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		endpoint:   u,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		token:      token,
	}, nil
}

// Token returns a copy of the current credential pair.
func (c *Client) Token() auth.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(t auth.Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// All endpoints wrap their payload in this envelope. A status_code other
// than 200 is a server-reported failure even when the HTTP status is 200.
type envelope struct {
	Entity     json.RawMessage `json:"entity"`
	StatusCode int             `json:"status_code"`
}

// A StatusError reports a server-side failure carried in the envelope.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server status code %d", e.Path, e.Code)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, entity any) error {
	return c.roundTrip(ctx, http.MethodGet, path, query, nil, entity, true)
}

func (c *Client) post(ctx context.Context, path string, body any, entity any) error {
	return c.roundTrip(ctx, http.MethodPost, path, nil, body, entity, true)
}

// Issue one API call, refreshing the token and retrying exactly once if the
// server answers 401. The refresh request itself never retries.
func (c *Client) roundTrip(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
	entity any,
	mayRefresh bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encoding request: %w", path, err)
		}
	}

	raw, status, err := c.doOnce(ctx, method, path, query, payload)
	if status == http.StatusUnauthorized && mayRefresh {
		logger.Debugf("rec: %s returned 401, refreshing token", path)
		if err = c.refresh(ctx); err != nil {
			return fmt.Errorf("%s: refreshing token: %w", path, err)
		}
		raw, status, err = c.doOnce(ctx, method, path, query, payload)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: unexpected HTTP status %d", path, status)
	}

	return decodeEnvelope(path, raw, entity)
}

// Perform a single HTTP exchange and return the raw body and status.
func (c *Client) doOnce(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	payload []byte) (raw []byte, status int, err error) {
	u := *c.endpoint
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(authHeader, c.Token().AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// Some server responses lead with a UTF-8 byte order mark; strip it before
// decoding.
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

func decodeEnvelope(path string, raw []byte, entity any) error {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", path, err)
	}
	if env.StatusCode != http.StatusOK {
		return &StatusError{Path: path, Code: env.StatusCode}
	}
	if entity == nil {
		return nil
	}
	if err := json.Unmarshal(env.Entity, entity); err != nil {
		return fmt.Errorf("%s: decoding entity: %w", path, err)
	}
	return nil
}

type refreshEntity struct {
	XAuthToken   string `json:"x_auth_token"`
	RefreshToken string `json:"refresh_token"`
}

// Exchange the refresh token for a fresh pair and persist it.
func (c *Client) refresh(ctx context.Context) error {
	body := map[string]string{
		"refresh_token": c.Token().RefreshToken,
	}

	var ent refreshEntity
	if err := c.roundTrip(ctx, http.MethodPost, "user/refresh/token", nil, body, &ent, false); err != nil {
		return err
	}

	t := auth.Token{AccessToken: ent.XAuthToken, RefreshToken: ent.RefreshToken}
	c.setToken(t)
	if c.store != nil {
		if err := c.store.Save(t); err != nil {
			logger.Warnf("rec: persisting refreshed token: %v", err)
		}
	}
	return nil
}

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

// Package auth holds the credential pair for the remote account and its
// persistence in the OS keyring.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "recfs"
	keyringAccount = "userauth"

	accessCookie  = "Rec-Token"
	refreshCookie = "Rec-RefreshToken"
)

// ErrNotFound is returned by Store.Load when no credential is persisted.
var ErrNotFound = errors.New("no stored credential")

// A Token is the credential pair attached to remote requests. The access
// token authenticates individual calls; the refresh token obtains a new
// access token when the server reports the old one expired.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// A Store persists the token in the OS keyring under a fixed service and
// account name.
type Store struct{}

// Load reads the persisted token. Returns ErrNotFound when the keyring has
// no entry.
func (Store) Load() (Token, error) {
	raw, err := keyring.Get(keyringService, keyringAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Token{}, ErrNotFound
		}
		return Token{}, fmt.Errorf("keyring get: %w", err)
	}

	var t Token
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Token{}, fmt.Errorf("decoding stored credential: %w", err)
	}
	return t, nil
}

// Save writes the token to the keyring, replacing any previous entry.
func (Store) Save(t Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	if err := keyring.Set(keyringService, keyringAccount, string(raw)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete removes any persisted token. Deleting a missing entry is not an
// error.
func (Store) Delete() error {
	err := keyring.Delete(keyringService, keyringAccount)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// ParseCookies extracts the token pair from a browser cookie string of the
// form "k1=v1; k2=v2; ...". The access token is the Rec-Token value; the
// refresh token lives inside the percent-encoded JSON object carried by
// Rec-RefreshToken.
func ParseCookies(cookies string) (Token, error) {
	var t Token
	for _, part := range strings.Split(cookies, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		switch name {
		case accessCookie:
			t.AccessToken = value

		case refreshCookie:
			decoded, err := url.QueryUnescape(value)
			if err != nil {
				return Token{}, fmt.Errorf("decoding %s cookie: %w", refreshCookie, err)
			}
			var payload struct {
				RefreshToken string `json:"refresh_token"`
			}
			if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
				return Token{}, fmt.Errorf("decoding %s cookie: %w", refreshCookie, err)
			}
			t.RefreshToken = payload.RefreshToken
		}
	}

	if t.AccessToken == "" || t.RefreshToken == "" {
		return Token{}, errors.New("cookie string is missing the token cookies")
	}
	return t, nil
}

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

package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt asks the user to paste the cookie string from a logged-in browser
// session and returns the decomposed token. Input is read without echo when
// in is a terminal, since the cookies are credentials.
func Prompt(in *os.File, out io.Writer) (Token, error) {
	fmt.Fprint(out, "Paste the Rec cookie string: ")

	var line string
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return Token{}, fmt.Errorf("reading cookie string: %w", err)
		}
		line = string(raw)
	} else {
		raw, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return Token{}, fmt.Errorf("reading cookie string: %w", err)
		}
		line = raw
	}

	return ParseCookies(strings.TrimSpace(line))
}

// Login obtains a token interactively and persists it.
func Login(store Store, in *os.File, out io.Writer) (Token, error) {
	t, err := Prompt(in, out)
	if err != nil {
		return Token{}, err
	}
	if err := store.Save(t); err != nil {
		return Token{}, err
	}
	return t, nil
}

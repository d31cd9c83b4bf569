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

package rec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/recfs/recfs/internal/fid"
)

// The server reports listing timestamps in its local zone, which is UTC-8,
// without an offset marker.
var serverZone = time.FixedZone("UTC-8", -8*60*60)

const timeLayout = "2006-01-02 15:04:05"

type listData struct {
	Bytes          json.RawMessage `json:"bytes"`
	FileExt        string          `json:"file_ext"`
	Hash           string          `json:"hash"`
	LastUpdateDate string          `json:"last_update_date"`
	Name           string          `json:"name"`
	Number         string          `json:"number"`
	ParentNumber   string          `json:"parent_number"`
	Type           string          `json:"type"`
}

type listEntity struct {
	Datas []listData `json:"datas"`
}

// List fetches the children of the given directory from the selected disk.
func (c *Client) List(ctx context.Context, f fid.Fid, disk DiskType) ([]Entry, error) {
	query := url.Values{
		"disk_type": {string(disk)},
		"is_rec":    {"false"},
		"category":  {"all"},
	}

	var ent listEntity
	if err := c.get(ctx, "folder/content/"+f.String(), query, &ent); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ent.Datas))
	for _, d := range ent.Datas {
		e, err := entryFromData(d)
		if err != nil {
			return nil, fmt.Errorf("folder/content/%s: %w", f, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryFromData(d listData) (Entry, error) {
	f, err := fid.Parse(d.Number)
	if err != nil {
		return Entry{}, err
	}

	var kind Kind
	switch d.Type {
	case "folder":
		kind = KindDirectory
	case "file":
		kind = KindFile
	default:
		return Entry{}, fmt.Errorf("unknown object type %q", d.Type)
	}

	size, err := sizeFromBytesField(d.Bytes)
	if err != nil {
		return Entry{}, fmt.Errorf("object %s: %w", d.Number, err)
	}

	updated, err := time.ParseInLocation(timeLayout, d.LastUpdateDate, serverZone)
	if err != nil {
		return Entry{}, fmt.Errorf("object %s: %w", d.Number, err)
	}

	return Entry{
		Fid:       f,
		Name:      DisplayName(d.Name, d.FileExt),
		Size:      size,
		Hash:      d.Hash,
		Kind:      kind,
		UpdatedAt: updated.UTC(),
	}, nil
}

// The size field is a number for regular files, and a string sentinel for
// objects the server does not size (folders); the sentinel counts as zero.
func sizeFromBytesField(raw json.RawMessage) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return 0, nil
	}

	return 0, fmt.Errorf("invalid bytes field %s", string(raw))
}

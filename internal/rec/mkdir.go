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

	"github.com/recfs/recfs/internal/fid"
)

// Mkdir creates a directory named name under parent.
func (c *Client) Mkdir(ctx context.Context, parent fid.Fid, name string) error {
	body := map[string]any{
		"disk_type":  string(DiskCloud),
		"number":     parent.String(),
		"paramslist": []string{name},
	}
	return c.post(ctx, "folder/tree", body, nil)
}

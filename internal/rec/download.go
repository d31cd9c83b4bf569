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
	"fmt"

	"github.com/recfs/recfs/internal/fid"
)

// DownloadURL obtains a signed URL for the body of the given file. The URL
// requires no further authentication.
func (c *Client) DownloadURL(ctx context.Context, f fid.Fid) (string, error) {
	body := map[string]any{
		"files_list": []string{f.String()},
	}

	var ent map[string]string
	if err := c.post(ctx, "download", body, &ent); err != nil {
		return "", err
	}

	u, ok := ent[f.String()]
	if !ok || u == "" {
		return "", fmt.Errorf("download: no URL returned for %s", f)
	}
	return u, nil
}

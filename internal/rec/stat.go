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

import "context"

// AccountInfo reports the account's space accounting. The server sends the
// space fields as decimal strings.
type AccountInfo struct {
	TotalSpace uint64 `json:"total_space,string"`
	UsedSpace  uint64 `json:"used_space,string"`
}

// Stat fetches the account's space usage.
func (c *Client) Stat(ctx context.Context) (AccountInfo, error) {
	var info AccountInfo
	if err := c.get(ctx, "userinfo", nil, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

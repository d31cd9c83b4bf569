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

package cmd

import (
	"fmt"
	"os"

	"github.com/recfs/recfs/cfg"
	"github.com/spf13/cobra"
)

var bindErr error

var rootCmd = &cobra.Command{
	Use:   "recfs [flags] mountpoint",
	Short: "Mount a Rec cloud-storage account as a local file system",
	Long: `recfs exposes a Rec cloud-storage account as a read-mostly local
file system. Listings and file bodies are fetched on demand and cached;
file bodies land in a scratch directory under the system temp dir.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		config, err := cfg.Load()
		if err != nil {
			return err
		}
		return mountAndServe(config, args[0])
	},
}

// Execute runs the root command. Exits non-zero on any failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/recfs/recfs/cfg"
	"github.com/recfs/recfs/internal/auth"
	"github.com/recfs/recfs/internal/contentcache"
	"github.com/recfs/recfs/internal/fs"
	"github.com/recfs/recfs/internal/logger"
	"github.com/recfs/recfs/internal/pathfs"
	"github.com/recfs/recfs/internal/rec"
)

// Unmount when the user interrupts, instead of dying and leaving a stale
// mount behind.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for {
			<-signalChan
			logger.Info("Received SIGINT, attempting to unmount...")

			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

// Obtain a credential: the keyring entry when present, an interactive
// login otherwise.
func obtainToken(store auth.Store) (auth.Token, error) {
	token, err := store.Load()
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return auth.Token{}, err
	}

	if token, err = auth.Login(store, os.Stdin, os.Stdout); err != nil {
		return auth.Token{}, fmt.Errorf("no usable credential; login failed: %w", err)
	}
	return token, nil
}

func mountAndServe(config cfg.Config, mountPoint string) error {
	err := logger.Setup(string(config.LogSeverity), config.LogFormat, config.LogFile)
	if err != nil {
		return err
	}

	info, err := os.Stat(mountPoint)
	if err != nil {
		return fmt.Errorf("mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point %s is not a directory", mountPoint)
	}

	var store auth.Store
	if config.ClearCredentials {
		if err := store.Delete(); err != nil {
			return err
		}
	}
	token, err := obtainToken(store)
	if err != nil {
		return err
	}

	scratch := config.CacheDir
	if scratch == "" {
		scratch = contentcache.ScratchDir()
	}
	fmt.Printf("Cache folder: %s\n", scratch)
	if err := contentcache.Init(scratch, os.Stdin, os.Stdout); err != nil {
		return err
	}

	client, err := rec.NewClient(config.Endpoint, token, store, config.HTTPTimeout)
	if err != nil {
		return err
	}

	server := pathfs.NewServer(
		fs.NewFileSystem(&fs.ServerConfig{
			Client:          client,
			ContentCache:    contentcache.New(scratch, nil),
			DisableFastPath: config.DisableFastPath,
		}),
		timeutil.RealClock(),
	)

	mountCfg := &fuse.MountConfig{
		FSName:  "recfs",
		Subtype: "recfs",
	}

	logger.Infof("Mounting at %q", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}

	registerSIGINTHandler(mountPoint)

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("Unmounted cleanly.")
	return nil
}

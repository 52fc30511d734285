// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package agent

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/posworks/activation-server/pkg/local"
	"github.com/posworks/activation-server/pkg/serial"
)

// seedEntry is one preloaded key in the seed file.
type seedEntry struct {
	Serial           string     `yaml:"serial"`
	Valid            bool       `yaml:"valid"`
	MaxInstallations int        `yaml:"max_installations"`
	LicenseType      string     `yaml:"license_type"`
	Expires          *time.Time `yaml:"expires"`
}

// SeedOffline loads the preloaded key directory from the seed file, if
// configured, and adds the emergency key derived from the machine
// fingerprint. Seeding is idempotent; it can run on every startup.
func (a *Agent) SeedOffline() error {

	if a.Config.Agent.SeedFile != "" {
		yamlData, err := os.ReadFile(a.Config.Agent.SeedFile)
		if err != nil {
			return err
		}
		var entries []seedEntry
		if err = yaml.Unmarshal(yamlData, &entries); err != nil {
			return err
		}
		for _, entry := range entries {
			key := &local.PreloadedKey{
				SerialNumber:     serial.Normalize(entry.Serial),
				Valid:            entry.Valid,
				MaxInstallations: entry.MaxInstallations,
				LicenseType:      entry.LicenseType,
				Expires:          entry.Expires,
			}
			if err = a.Store.Preloaded().Upsert(key); err != nil {
				return err
			}
		}
		log.Infof("Seeded %d preloaded keys from %s", len(entries), a.Config.Agent.SeedFile)
	}

	// the emergency key is a local trust bootstrap, not a server-issued
	// credential; it is time-boxed and tied to this machine
	expires := time.Now().AddDate(0, 0, a.Config.Agent.GraceDays)
	emergency := &local.PreloadedKey{
		SerialNumber:     serial.Derive(a.Config.License.Prefix, a.Config.License.ChecksumSecret, []byte(a.hardwareID)),
		Valid:            true,
		MaxInstallations: 1,
		LicenseType:      "emergency",
		Expires:          &expires,
	}
	return a.Store.Preloaded().Upsert(emergency)
}

// WatchSeeds monitors the seed file and reloads the offline directory when
// it changes. Blocks until done is closed.
func (a *Agent) WatchSeeds(done <-chan struct{}) {

	if a.Config.Agent.SeedFile == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("Error creating watcher: %v", err)
		return
	}
	defer watcher.Close()

	err = watcher.Add(a.Config.Agent.SeedFile)
	if err != nil {
		log.Errorf("Error watching the seed file: %v", err)
		return
	}

	log.Printf("Monitoring seed file: %s", a.Config.Agent.SeedFile)
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Printf("Seed file modified: %s", event.Name)
				if err := a.SeedOffline(); err != nil {
					log.Errorf("Error reloading the seed file: %v", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("Watcher error: %v", err)
		}
	}
}

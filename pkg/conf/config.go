// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package conf

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Activation Server configuration
type Config struct {
	LogLevel      string `yaml:"log_level"` // "debug", "info", "warn", "error"
	PublicBaseUrl string `yaml:"public_base_url"`
	Port          int    `yaml:"port"`
	Dsn           string `yaml:"dsn"`
	Access        `yaml:"access"`
	JWT           `yaml:"jwt"`
	License       `yaml:"license"`
	Agent         `yaml:"agent"`
	Dashboard     `yaml:"dashboard"`
}

type Access struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type JWT struct {
	SecretKey string            `yaml:"secret_key"`
	Admin     map[string]string `yaml:"admin"` // username -> password
}

type License struct {
	Prefix           string `yaml:"prefix"` // serial number prefix, e.g. "POS"
	ChecksumSecret   string `yaml:"checksum_secret"`
	MaxInstallations int    `yaml:"max_installations"` // per key, default 3
}

// Agent is the configuration of the desktop-side activation agent.
type Agent struct {
	ServerUrl string `yaml:"server_url"`
	LocalDsn  string `yaml:"local_dsn"`  // local entitlement store
	Timeout   int    `yaml:"timeout"`    // seconds, for calls to the authority
	GraceDays int    `yaml:"grace_days"` // validity of an offline temporary grant
	SeedFile  string `yaml:"seed_file"`  // preloaded offline keys
}

type Dashboard struct {
	ConflictThreshold   int  `yaml:"conflict_threshold"` // rejections before a hardware id is reported
	LimitToLast12Months bool `yaml:"limit_to_last_12_months"`
}

func Init(configFile string) (*Config, error) {

	var c Config

	if configFile != "" {
		f, _ := filepath.Abs(configFile)
		yamlData, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		err = yaml.Unmarshal(yamlData, &c)
		if err != nil {
			return nil, err
		}

	} else {
		return nil, errors.New("failed to find the configuration file")
	}

	setDefaults(&c)

	return &c, nil
}

func setDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8081
	}
	if c.License.Prefix == "" {
		c.License.Prefix = "POS"
	}
	if c.License.MaxInstallations == 0 {
		c.License.MaxInstallations = 3
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = 15
	}
	if c.Agent.GraceDays == 0 {
		c.Agent.GraceDays = 30
	}
	if c.Dashboard.ConflictThreshold == 0 {
		c.Dashboard.ConflictThreshold = 3
	}
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// activationcheck verifies that an activation server behaves as expected
// for a given serial number.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/check"
	"github.com/posworks/activation-server/pkg/fingerprint"
)

// Activation Check configuration
type Config struct {
	ServerUrl  string `split_words:"true"`
	HardwareID string `envconfig:"hardware_id"`
	Verbose    bool
}

func init() {
	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
}

func usage() {
	fmt.Println("Usage: activationcheck [-server] [-hardware] [-level] [-verbose] serialnumber")
	flag.PrintDefaults()
}

func main() {

	var c Config
	err := envconfig.Process("activationcheck", &c)
	if err != nil {
		log.Errorln("Configuration failed: " + err.Error())
		os.Exit(1)
	}

	// parse the command line; flags override the environment
	server := flag.String("server", "", "base url of the activation server.")
	hardware := flag.String("hardware", "", "hardware id presented to the server. If not indicated, the fingerprint of this machine is used.")
	level := flag.Uint("level", 0, "checker level (1 validation, 2 key status, 3 activation round trip)")
	verbose := flag.Bool("verbose", false, "if set, display info messages; if not set, display only warnings and errors.")
	flag.Parse()

	if *server != "" {
		c.ServerUrl = *server
	}
	if *hardware != "" {
		c.HardwareID = *hardware
	}

	// the verbose flag acts on the info level
	if !*verbose && !c.Verbose {
		log.SetLevel(log.WarnLevel)
	}

	serialNumber := flag.Arg(0)
	if serialNumber == "" || c.ServerUrl == "" {
		usage()
		os.Exit(1)
	}
	if c.HardwareID == "" {
		c.HardwareID = fingerprint.Generate()
	}

	serverURL := strings.TrimSuffix(c.ServerUrl, "/")
	fmt.Println("Checking ", serialNumber, " against ", serverURL)

	// pass all checks
	err = check.Checker(serverURL, serialNumber, c.HardwareID, *level)
	if err != nil {
		os.Exit(1)
	}
}

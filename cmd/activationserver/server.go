// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// Activation Server manages license keys and machine activations.
package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/conf"
	"github.com/posworks/activation-server/pkg/stor"
)

// Server context
type Server struct {
	*conf.Config
	stor.Store
	Router *chi.Mux
}

func main() {

	s := Server{}

	configFile := os.Getenv("POSWORKS_ACTIVATIONSERVER_CONFIG")
	if configFile == "" {
		panic("Failed to retrieve the configuration file path.")
	}

	c, err := conf.Init(configFile)
	if err != nil {
		panic("Failed to read the configuration.")
	}

	s.Config = c

	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}

	s.Initialize()

	log.Printf("The server is ready.")

	s.Run(":" + strconv.Itoa(c.Port))
}

// Initialize sets up the database and routes
func (s *Server) Initialize() {
	var err error

	// Setup the database
	s.Store, err = stor.Init(s.Config.Dsn)
	if err != nil {
		panic("Database setup failed.")
	}

	// Setup the routes
	s.Router = s.setRoutes()
}

// Run starts the server
func (s *Server) Run(port string) {
	log.Fatal(http.ListenAndServe(port, s.Router))
}

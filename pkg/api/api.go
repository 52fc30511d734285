// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// Package api manages the api controllers
package api

import (
	"github.com/posworks/activation-server/pkg/conf"
	"github.com/posworks/activation-server/pkg/stor"
)

// APICtrl contains the context required by http handlers.
type APICtrl struct {
	*conf.Config // TODO: change for an interface (dependency)
	stor.Store
}

// NewAPICtrl returns a new API controller
func NewAPICtrl(cf *conf.Config, st stor.Store) *APICtrl {
	return &APICtrl{
		Config: cf,
		Store:  st,
	}
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package api

import (
	"net/http"

	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/stor"
)

// GetStats provides a summary of key metrics and statistics about the authority.
func (a *APICtrl) GetStats(w http.ResponseWriter, r *http.Request) {

	var data *stor.StatsData

	data, err := a.Store.Stats().GetStats(a.Config.Dashboard.LimitToLast12Months)
	if err != nil {
		log.Errorf("Get Stats: failed to get data: %v", err)
		render.Render(w, r, ErrServer(err))
		return
	}

	if err := render.Render(w, r, NewStatsResponse(data)); err != nil {
		render.Render(w, r, ErrRender(err))
	}
}

// GetConflictedHardware lists hardware ids repeatedly rejected for cross-key
// conflicts, a hint of license sharing attempts.
func (a *APICtrl) GetConflictedHardware(w http.ResponseWriter, r *http.Request) {

	var data []stor.ConflictedHardwareData

	data, err := a.Store.Stats().GetConflictedHardware(a.Config.Dashboard.ConflictThreshold)
	if err != nil {
		log.Errorf("Get Conflicted Hardware: failed to get data: %v", err)
		render.Render(w, r, ErrServer(err))
		return
	}

	if err := render.Render(w, r, NewConflictedHardwareResponse(data)); err != nil {
		render.Render(w, r, ErrRender(err))
	}
}

// --
// Request and Response payloads for the REST api.
// --

// StatsResponse is the response payload for the dashboard.
type StatsResponse struct {
	*stor.StatsData
}

// NewStatsResponse creates rendered dashboard data
func NewStatsResponse(data *stor.StatsData) *StatsResponse {
	return &StatsResponse{StatsData: data}
}

// Render processes responses before marshalling.
func (s *StatsResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// ConflictedHardwareResponse is the response payload for the conflict report.
type ConflictedHardwareResponse struct {
	Items []stor.ConflictedHardwareData `json:"items"`
}

// NewConflictedHardwareResponse creates a rendered conflict report
func NewConflictedHardwareResponse(data []stor.ConflictedHardwareData) *ConflictedHardwareResponse {
	return &ConflictedHardwareResponse{Items: data}
}

// Render processes responses before marshalling.
func (c *ConflictedHardwareResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The agent package implements the desktop-side activation client: the
// activation state machine (online first, offline fallback, temporary
// grants), the trial usage meter and the local entitlement surface read by
// the application shell.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/posworks/activation-server/pkg/authority"
	"github.com/posworks/activation-server/pkg/conf"
	"github.com/posworks/activation-server/pkg/fingerprint"
	"github.com/posworks/activation-server/pkg/local"
)

// Client-side rejection codes; authority-side codes are defined in the
// authority package and pass through unchanged.
const (
	SN_FORMAT_INVALID   = "SN_FORMAT_INVALID"
	SN_CHECKSUM_INVALID = "SN_CHECKSUM_INVALID"
	TRIAL_LIMIT_REACHED = "TRIAL_LIMIT_REACHED"
)

// ActivationError is a typed business rejection, terminal and informative.
// Transport errors never surface as ActivationError; they are recovered by
// the offline path.
type ActivationError struct {
	Code                 string                   `json:"code"`
	Message              string                   `json:"message"`
	ConflictSerialNumber string                   `json:"conflictSerialNumber,omitempty"`
	Installations        []authority.Installation `json:"installations,omitempty"`
}

func (e *ActivationError) Error() string {
	return e.Code + ": " + e.Message
}

// Agent holds the state of the activation client. A single agent serves one
// installed instance; its hardware id is computed once at startup.
type Agent struct {
	*conf.Config
	Store local.Store

	hardwareID string
	machine    *fingerprint.MachineInfo
	client     *http.Client

	// serializes trial counter increments
	mu sync.Mutex
}

// NewAgent returns an agent bound to the local store, with the machine
// fingerprint computed once.
func NewAgent(cf *conf.Config, st local.Store) *Agent {
	return &Agent{
		Config:     cf,
		Store:      st,
		hardwareID: fingerprint.Generate(),
		machine:    fingerprint.Describe(),
		client: &http.Client{
			Timeout: time.Duration(cf.Agent.Timeout) * time.Second,
		},
	}
}

// HardwareID returns the composite fingerprint of this machine.
func (a *Agent) HardwareID() string {
	return a.hardwareID
}

// postJSON posts a payload to the authority and decodes the JSON response.
// A transport failure or a 5xx is returned as an error; business rejections
// travel inside the decoded body and are interpreted by the caller.
func (a *Agent) postJSON(path string, payload interface{}, target interface{}) (int, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	resp, err := a.client.Post(a.Config.Agent.ServerUrl+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("authority returned status %d", resp.StatusCode)
	}

	// a successful status must carry a readable body; treating garbage as a
	// transport failure routes the caller to the offline fallback. Rejections
	// may come with an empty or non-JSON body, which the caller interprets
	// from the status code alone.
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil &&
		resp.StatusCode < http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("authority returned an unreadable response: %w", err)
	}
	return resp.StatusCode, nil
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package agent

import (
	"time"

	"github.com/posworks/activation-server/pkg/local"
)

// Status is the entitlement surface consumed by the application shell.
type Status struct {
	Status            string      `json:"status"` // trial | temporary | activated
	TotalTransactions int         `json:"totalTransactions"`
	Remaining         interface{} `json:"remaining"` // int or "unlimited"
	Activated         bool        `json:"activated"`
	SerialNumber      string      `json:"serialNumber,omitempty"`
	HardwareID        string      `json:"hardwareId,omitempty"`
	ActivationDate    *time.Time  `json:"activationDate,omitempty"`
	Temporary         bool        `json:"temporary"`
	Expires           *time.Time  `json:"expires,omitempty"`
}

// GetStatus returns the current entitlement state. An expired temporary
// grant is reported as trial.
func (a *Agent) GetStatus() (*Status, error) {

	e, err := a.Store.Entitlement().Get()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	status := &Status{
		TotalTransactions: e.TotalTransactions,
		HardwareID:        a.hardwareID,
	}

	if entitled(e, now) {
		status.Activated = true
		status.Remaining = "unlimited"
		status.SerialNumber = e.SerialNumber
		status.ActivationDate = e.ActivationDate
		if e.TemporaryUntil != nil {
			status.Status = MODE_TEMPORARY
			status.Temporary = true
			status.Expires = e.TemporaryUntil
		} else {
			status.Status = local.LIC_ACTIVATED
		}
		return status, nil
	}

	status.Status = local.LIC_TRIAL
	remaining := TrialLimit - e.TotalTransactions
	if remaining < 0 {
		remaining = 0
	}
	status.Remaining = remaining
	return status, nil
}

// ResetTrialCounter clears all license and trial state back to the initial
// trial condition. Support and testing utility.
func (a *Agent) ResetTrialCounter() error {

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.Store.Entitlement().Reset(); err != nil {
		return err
	}
	return a.Store.Queue().Clear()
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package agent

import (
	"time"

	"github.com/posworks/activation-server/pkg/local"
)

// TrialLimit is the number of transactions allowed before activation is required.
const TrialLimit = 99

// Advisory warning levels, surfaced to the UI, never blocking.
const (
	WARN_NONE     = ""
	WARN_MEDIUM   = "medium"
	WARN_HIGH     = "high"
	WARN_CRITICAL = "critical"
)

// Tally is the result of a metered transaction.
type Tally struct {
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
	Warning   string `json:"warning,omitempty"`
	Status    string `json:"status"`
}

// IncrementTransaction counts one protected operation. Activated
// installations are unmetered. On an unactivated installation the counter
// stops hard at the trial limit: the call fails with TRIAL_LIMIT_REACHED,
// the counter is left unchanged and the caller must block the operation.
// There is no offline bypass; this is the commercial safeguard the rest of
// the system exists to protect.
func (a *Agent) IncrementTransaction() (*Tally, error) {

	// two simultaneous increments must not both read the same pre-increment value
	a.mu.Lock()
	defer a.mu.Unlock()

	e, err := a.Store.Entitlement().Get()
	if err != nil {
		return nil, err
	}

	if entitled(e, time.Now()) {
		e.TotalTransactions++
		if err = a.Store.Entitlement().Update(e); err != nil {
			return nil, err
		}
		return &Tally{
			Total:     e.TotalTransactions,
			Unlimited: true,
			Status:    local.LIC_ACTIVATED,
		}, nil
	}

	if e.TotalTransactions >= TrialLimit {
		return nil, &ActivationError{
			Code:    TRIAL_LIMIT_REACHED,
			Message: "The trial limit has been reached, activation is required",
		}
	}

	e.TotalTransactions++
	if err = a.Store.Entitlement().Update(e); err != nil {
		return nil, err
	}

	remaining := TrialLimit - e.TotalTransactions
	return &Tally{
		Total:     e.TotalTransactions,
		Remaining: remaining,
		Warning:   warningLevel(remaining),
		Status:    local.LIC_TRIAL,
	}, nil
}

// entitled reports whether the installation is currently activated; an
// expired temporary grant falls back to trial.
func entitled(e *local.Entitlement, now time.Time) bool {
	if e.LicenseStatus != local.LIC_ACTIVATED {
		return false
	}
	if e.TemporaryUntil != nil && now.After(*e.TemporaryUntil) {
		return false
	}
	return true
}

func warningLevel(remaining int) string {
	switch {
	case remaining <= 4:
		return WARN_CRITICAL
	case remaining <= 9:
		return WARN_HIGH
	case remaining <= 19:
		return WARN_MEDIUM
	}
	return WARN_NONE
}

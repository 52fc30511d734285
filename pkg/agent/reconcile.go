// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package agent

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/api"
	"github.com/posworks/activation-server/pkg/authority"
	"github.com/posworks/activation-server/pkg/local"
)

// Reconcile replays pending temporary activations against the authority.
// Best effort: a transport failure stops the pass and leaves the queue
// untouched for the next opportunity, a business rejection marks the entry
// failed, a confirmation clears the temporary expiry on the entitlement.
func (a *Agent) Reconcile() {

	entries, err := a.Store.Queue().Pending()
	if err != nil {
		log.Errorf("Error reading the reconciliation queue: %v", err)
		return
	}

	for _, entry := range *entries {
		confirmed, err := a.reconcileEntry(&entry)
		if err != nil {
			// the authority is unreachable again; retry on the next pass
			entry.Attempts++
			if uerr := a.Store.Queue().Update(&entry); uerr != nil {
				log.Errorf("Error updating queue entry %d: %v", entry.ID, uerr)
			}
			return
		}
		if confirmed {
			entry.Status = local.QUEUE_RECONCILED
			log.Infof("Serial %s reconciled with the authority", entry.SerialNumber)
		} else {
			entry.Status = local.QUEUE_FAILED
			log.Warnf("Serial %s rejected by the authority during reconciliation", entry.SerialNumber)
		}
		entry.Attempts++
		if err := a.Store.Queue().Update(&entry); err != nil {
			log.Errorf("Error updating queue entry %d: %v", entry.ID, err)
		}
		if confirmed {
			a.confirmEntitlement(entry.SerialNumber, entry.HardwareID)
		}
	}
}

// reconcileEntry replays one queued activation. The boolean result is the
// authority's verdict; the error is a transport failure.
func (a *Agent) reconcileEntry(entry *local.QueueEntry) (bool, error) {

	request := &api.ActivationRequest{
		SerialNumber: entry.SerialNumber,
		HardwareID:   entry.HardwareID,
		ComputerInfo: api.ComputerInfo{Name: a.machine.Name, OS: a.machine.OS},
	}

	var validation authority.ValidationResult
	if _, err := a.postJSON("/license/validate", request, &validation); err != nil {
		return false, err
	}
	if validation.Existing {
		return true, nil
	}
	if !validation.Valid {
		return false, nil
	}

	var activation authority.ActivationResult
	code, err := a.postJSON("/license/activate", request, &activation)
	if err != nil {
		return false, err
	}
	if code == http.StatusConflict || !activation.Success {
		return false, nil
	}
	return true, nil
}

// confirmEntitlement clears the temporary expiry once the authority has
// confirmed the queued activation.
func (a *Agent) confirmEntitlement(sn, hardwareID string) {

	e, err := a.Store.Entitlement().Get()
	if err != nil {
		log.Errorf("Error reading the entitlement: %v", err)
		return
	}
	if e.SerialNumber != sn || e.HardwareID != hardwareID || e.TemporaryUntil == nil {
		return
	}
	e.TemporaryUntil = nil
	if err := a.Store.Entitlement().Update(e); err != nil {
		log.Errorf("Error updating the entitlement: %v", err)
	}
}

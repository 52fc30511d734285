// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package agent

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/api"
	"github.com/posworks/activation-server/pkg/authority"
	"github.com/posworks/activation-server/pkg/local"
	"github.com/posworks/activation-server/pkg/serial"
)

// Activation modes
const (
	MODE_ONLINE    = "online"
	MODE_OFFLINE   = "offline"
	MODE_TEMPORARY = "temporary"
)

// Outcome is the terminal state of an activation attempt.
type Outcome struct {
	Activated bool       `json:"activated"`
	Mode      string     `json:"mode"`
	Slot      int        `json:"slot,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Activate runs the activation state machine for a serial number, a single
// sequential flow per attempt. Format and checksum failures are rejected
// before any network call; transport errors route to the offline fallback
// and never fail the operation; business rejections from the authority are
// terminal, typed, and persist nothing.
func (a *Agent) Activate(serialNumber string) (*Outcome, error) {

	sn := serial.Normalize(serialNumber)

	if err := serial.CheckFormat(sn); err != nil {
		return nil, &ActivationError{
			Code:    SN_FORMAT_INVALID,
			Message: "The serial number does not match the expected format",
		}
	}

	if err := serial.CheckMAC(sn, a.Config.License.ChecksumSecret); err != nil {
		return nil, &ActivationError{
			Code:    SN_CHECKSUM_INVALID,
			Message: "The serial number checksum is invalid",
		}
	}

	outcome, err := a.activateOnline(sn)
	if err == nil {
		return outcome, nil
	}

	// a business rejection is terminal
	var actErr *ActivationError
	if errors.As(err, &actErr) {
		return nil, err
	}

	// network absence must never brick the workflow
	log.Warnf("Authority unreachable, falling back to the offline directory: %v", err)
	return a.activateOffline(sn)
}

// activateOnline calls the authority validate, then activate, endpoints.
// It returns a plain error on transport failure, which the caller converts
// into an offline fallback.
func (a *Agent) activateOnline(sn string) (*Outcome, error) {

	request := &api.ActivationRequest{
		SerialNumber: sn,
		HardwareID:   a.hardwareID,
		ComputerInfo: api.ComputerInfo{Name: a.machine.Name, OS: a.machine.OS},
	}

	var validation authority.ValidationResult
	if _, err := a.postJSON("/license/validate", request, &validation); err != nil {
		return nil, err
	}

	if !validation.Valid {
		return nil, &ActivationError{
			Code:                 validation.Reason,
			Message:              validation.Message,
			ConflictSerialNumber: validation.ConflictSerialNumber,
			Installations:        validation.Installations,
		}
	}

	// a previously activated machine re-confirms without consuming a slot
	if validation.Existing {
		if err := a.persistActivation(sn, nil); err != nil {
			return nil, err
		}
		a.Reconcile()
		return &Outcome{
			Activated: true,
			Mode:      MODE_ONLINE,
			Message:   "This machine was already activated",
		}, nil
	}

	var activation authority.ActivationResult
	code, err := a.postJSON("/license/activate", request, &activation)
	if err != nil {
		return nil, err
	}
	if code == http.StatusConflict {
		// capacity conflict discovered at commit time
		return nil, &ActivationError{
			Code:    authority.REASON_MAX_INSTALLATIONS,
			Message: "All installation slots of this serial number are in use",
		}
	}
	if !activation.Success {
		return nil, &ActivationError{
			Code:    "ACTIVATION_FAILED",
			Message: fmt.Sprintf("Activation failed: %s", activation.Message),
		}
	}

	if err := a.persistActivation(sn, nil); err != nil {
		return nil, err
	}
	a.Reconcile()

	return &Outcome{
		Activated: true,
		Mode:      MODE_ONLINE,
		Slot:      activation.Slot,
		Message:   "Activation successful",
	}, nil
}

// activateOffline consults the offline directory. A preloaded match yields an
// immediate activation that will sync when online; a miss yields a temporary
// grant with a queued reconciliation entry. Deny-by-default would punish
// legitimate offline customers; grant-without-expiry would void the model.
func (a *Agent) activateOffline(sn string) (*Outcome, error) {

	now := time.Now().Truncate(time.Second)

	key, err := a.Store.Preloaded().Get(sn)
	if err == nil && key.Valid && !key.Expired(now) {
		if err := a.persistActivation(sn, nil); err != nil {
			return nil, err
		}
		log.Infof("Serial %s activated from the offline directory", sn)
		return &Outcome{
			Activated: true,
			Mode:      MODE_OFFLINE,
			Message:   "Activated offline, will sync when online",
		}, nil
	}

	expires := now.AddDate(0, 0, a.Config.Agent.GraceDays)
	if err := a.persistActivation(sn, &expires); err != nil {
		return nil, err
	}

	entry := &local.QueueEntry{
		SerialNumber: sn,
		HardwareID:   a.hardwareID,
		Timestamp:    now,
		Status:       local.QUEUE_PENDING,
	}
	if err := a.Store.Queue().Create(entry); err != nil {
		return nil, err
	}

	log.Infof("Serial %s granted temporarily until %s", sn, expires.Format(time.RFC822))
	return &Outcome{
		Activated: true,
		Mode:      MODE_TEMPORARY,
		Expires:   &expires,
		Message:   "Activated temporarily, pending verification with the activation server",
	}, nil
}

// persistActivation records an activated entitlement. temporaryUntil is set
// only for the offline no-match branch.
func (a *Agent) persistActivation(sn string, temporaryUntil *time.Time) error {

	e, err := a.Store.Entitlement().Get()
	if err != nil {
		return err
	}

	now := time.Now().Truncate(time.Second)
	e.LicenseStatus = local.LIC_ACTIVATED
	e.SerialNumber = sn
	e.HardwareID = a.hardwareID
	e.ActivationDate = &now
	e.LastValidation = &now
	e.TemporaryUntil = temporaryUntil

	return a.Store.Entitlement().Update(e)
}

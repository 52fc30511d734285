// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The authority package implements the decision logic of the Activation
// Authority: which hardware ids are bound to which license keys, and how
// many installation slots each key has used.
package authority

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/posworks/activation-server/pkg/conf"
	"github.com/posworks/activation-server/pkg/fingerprint"
	"github.com/posworks/activation-server/pkg/serial"
	"github.com/posworks/activation-server/pkg/stor"
)

// Business rejection reason codes, part of the wire protocol.
const (
	REASON_NOT_FOUND         = "SN_NOT_FOUND"
	REASON_REVOKED           = "SN_REVOKED"
	REASON_HARDWARE_USED     = "HARDWARE_ALREADY_USED"
	REASON_MAX_INSTALLATIONS = "MAX_INSTALLATIONS_REACHED"
)

var (
	ErrKeyNotFound = errors.New("unknown license key")
	ErrKeyRevoked  = errors.New("revoked license key")
)

type (
	// Authority handles validation and activation decisions
	Authority struct {
		*conf.Config
		stor.Store
	}

	// Installation is the view of an activation returned to callers,
	// detailed enough for a user to decide which machine to deactivate.
	Installation struct {
		Slot         int       `json:"slot"`
		ComputerName string    `json:"computer_name"`
		LastSeen     time.Time `json:"last_seen"`
		Status       string    `json:"status"`
	}

	// ValidationResult is the outcome of a validate call.
	ValidationResult struct {
		Valid                bool           `json:"valid"`
		Existing             bool           `json:"existing,omitempty"`
		CanActivate          bool           `json:"canActivate,omitempty"`
		RemainingSlots       int            `json:"remainingSlots,omitempty"`
		Reason               string         `json:"reason,omitempty"`
		Message              string         `json:"message,omitempty"`
		Installations        []Installation `json:"installations,omitempty"`
		ConflictSerialNumber string         `json:"conflictSerialNumber,omitempty"`
	}

	// ActivationResult is the outcome of an activate call.
	ActivationResult struct {
		Success bool   `json:"success"`
		Slot    int    `json:"slot,omitempty"`
		Message string `json:"message,omitempty"`
	}

	// KeyStatus is the diagnostic view of a key and its installations.
	KeyStatus struct {
		Key           *stor.LicenseKey `json:"key"`
		Installations []Installation   `json:"installations"`
	}
)

func NewAuthority(cf *conf.Config, st stor.Store) *Authority {
	return &Authority{
		Config: cf,
		Store:  st,
	}
}

// Validate decides whether a machine may activate a license key.
// The decision order is fixed: unknown key, revoked key, idempotent
// re-validation of a bound pair, cross-key hardware conflict, capacity.
// Business rejections are results, not errors; the error return is reserved
// for storage failures.
func (a *Authority) Validate(serialNumber string, hardwareID string, m *fingerprint.MachineInfo) (*ValidationResult, error) {

	// only a missing record is a business rejection; a storage failure is
	// propagated, so the client can retry or fall back offline
	key, err := a.Store.LicenseKey().Get(serialNumber)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		a.audit(stor.EVENT_REJECT, REASON_NOT_FOUND, serialNumber, hardwareID)
		return &ValidationResult{
			Valid:   false,
			Reason:  REASON_NOT_FOUND,
			Message: "This serial number is unknown",
		}, nil
	}

	if key.Status == stor.KEY_REVOKED {
		a.audit(stor.EVENT_REJECT, REASON_REVOKED, serialNumber, hardwareID)
		return &ValidationResult{
			Valid:   false,
			Reason:  REASON_REVOKED,
			Message: "This serial number has been revoked",
		}, nil
	}

	// idempotent re-validation: a previously activated machine re-confirms
	// without consuming a new slot
	existing, err := a.Store.Activation().GetActive(serialNumber, hardwareID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		existing.LastSeen = time.Now().Truncate(time.Second)
		if err = a.Store.Activation().Update(existing); err != nil {
			log.Errorf("Failed to refresh an activation: %v", err)
			return nil, err
		}
		count, err := a.Store.Activation().CountActive(serialNumber)
		if err != nil {
			return nil, err
		}
		return &ValidationResult{
			Valid:          true,
			Existing:       true,
			RemainingSlots: key.MaxInstallations - int(count),
			Message:        "This machine is already activated",
		}, nil
	}

	// one machine may not simultaneously hold two independent entitlements
	bound, err := a.Store.Activation().GetActiveByHardware(hardwareID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && bound.SerialNumber != serialNumber {
		a.audit(stor.EVENT_REJECT, REASON_HARDWARE_USED, serialNumber, hardwareID)
		return &ValidationResult{
			Valid:                false,
			Reason:               REASON_HARDWARE_USED,
			Message:              "This machine is already activated with another serial number",
			ConflictSerialNumber: serial.Mask(bound.SerialNumber),
		}, nil
	}

	count, err := a.Store.Activation().CountActive(serialNumber)
	if err != nil {
		return nil, err
	}
	if int(count) >= key.MaxInstallations {
		a.audit(stor.EVENT_REJECT, REASON_MAX_INSTALLATIONS, serialNumber, hardwareID)
		installations, err := a.installations(serialNumber)
		if err != nil {
			return nil, err
		}
		return &ValidationResult{
			Valid:         false,
			Reason:        REASON_MAX_INSTALLATIONS,
			Message:       "All installation slots of this serial number are in use",
			Installations: installations,
		}, nil
	}

	return &ValidationResult{
		Valid:          true,
		CanActivate:    true,
		RemainingSlots: key.MaxInstallations - int(count),
	}, nil
}

// Activate binds the machine to the key at the smallest free installation
// slot. The reservation is atomic per key; concurrent activations for the
// same key can never be assigned the same slot. Capacity discovered at
// commit time surfaces as stor.ErrCapacity, cross-key conflicts as
// stor.ErrHardwareBound.
func (a *Authority) Activate(serialNumber string, hardwareID string, m *fingerprint.MachineInfo) (*ActivationResult, error) {

	key, err := a.Store.LicenseKey().Get(serialNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if key.Status == stor.KEY_REVOKED {
		return nil, ErrKeyRevoked
	}

	activation := &stor.Activation{
		UUID:         uuid.New().String(),
		SerialNumber: serialNumber,
		HardwareID:   hardwareID,
		LastSeen:     time.Now().Truncate(time.Second),
	}
	if m != nil {
		activation.MachineName = m.Name
		activation.OS = m.OS
	}

	slot, err := a.Store.Activation().Reserve(activation, key.MaxInstallations)
	if err != nil {
		if errors.Is(err, stor.ErrCapacity) {
			a.audit(stor.EVENT_REJECT, REASON_MAX_INSTALLATIONS, serialNumber, hardwareID)
		}
		if errors.Is(err, stor.ErrHardwareBound) {
			a.audit(stor.EVENT_REJECT, REASON_HARDWARE_USED, serialNumber, hardwareID)
		}
		return nil, err
	}

	a.audit(stor.EVENT_ACTIVATE, "", serialNumber, hardwareID)
	log.Infof("Serial %s activated on slot %d", serialNumber, slot)

	return &ActivationResult{
		Success: true,
		Slot:    slot,
		Message: "Activation successful",
	}, nil
}

// Deactivate unbinds the machine from the key, freeing its slot for reuse.
func (a *Authority) Deactivate(serialNumber string, hardwareID string) (*ActivationResult, error) {

	activation, err := a.Store.Activation().Release(serialNumber, hardwareID)
	if err != nil {
		return nil, err
	}

	a.audit(stor.EVENT_DEACTIVATE, "", serialNumber, hardwareID)
	log.Infof("Serial %s deactivated on slot %d", serialNumber, activation.Slot)

	return &ActivationResult{
		Success: true,
		Slot:    activation.Slot,
		Message: "Deactivation successful",
	}, nil
}

// Status returns the key record and its installation list.
func (a *Authority) Status(serialNumber string) (*KeyStatus, error) {

	key, err := a.Store.LicenseKey().Get(serialNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	installations, err := a.installations(serialNumber)
	if err != nil {
		return nil, err
	}

	return &KeyStatus{
		Key:           key,
		Installations: installations,
	}, nil
}

// IssueKey generates and stores a new license key.
func (a *Authority) IssueKey(maxInstallations int, licenseType string) (*stor.LicenseKey, error) {

	s, err := serial.New(a.Config.License.Prefix, a.Config.License.ChecksumSecret)
	if err != nil {
		return nil, err
	}
	if maxInstallations == 0 {
		maxInstallations = a.Config.License.MaxInstallations
	}

	key := &stor.LicenseKey{
		Serial:           s,
		Status:           stor.KEY_VALID,
		MaxInstallations: maxInstallations,
		LicenseType:      licenseType,
	}
	if err = a.Store.LicenseKey().Create(key); err != nil {
		return nil, err
	}
	log.Infof("New serial %s issued, %d installations", key.Serial, key.MaxInstallations)
	return key, nil
}

// Revoke marks a key revoked; subsequent validations fail with SN_REVOKED.
func (a *Authority) Revoke(serialNumber string) (*stor.LicenseKey, error) {

	key, err := a.Store.LicenseKey().Get(serialNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	key.Status = stor.KEY_REVOKED
	now := time.Now().Truncate(time.Second)
	key.StatusUpdated = &now
	if err = a.Store.LicenseKey().Update(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (a *Authority) installations(serialNumber string) ([]Installation, error) {

	activations, err := a.Store.Activation().FindActiveByKey(serialNumber)
	if err != nil {
		return nil, err
	}
	installations := make([]Installation, 0, len(*activations))
	for _, act := range *activations {
		installations = append(installations, Installation{
			Slot:         act.Slot,
			ComputerName: act.MachineName,
			LastSeen:     act.LastSeen,
			Status:       act.Status,
		})
	}
	return installations, nil
}

// audit records an activation lifecycle event; failures are logged, not fatal.
func (a *Authority) audit(eventType string, reason string, serialNumber string, hardwareID string) {
	event := &stor.AuditEvent{
		Timestamp:    time.Now().Truncate(time.Second),
		Type:         eventType,
		Reason:       reason,
		SerialNumber: serialNumber,
		HardwareID:   hardwareID,
	}
	if err := a.Store.Audit().Create(event); err != nil {
		log.Errorf("Failed to create an audit event: %v", err)
	}
}

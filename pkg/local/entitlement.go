// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package local

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Entitlement data model
// A single row holds the entitlement state of this installation: the trial
// transaction counter and, once activated, the bound serial number. The row
// is created on first access with status trial and a zero counter.
type Entitlement struct {
	ID                uint       `json:"-" gorm:"primaryKey"`
	TotalTransactions int        `json:"total_transactions"`
	LicenseStatus     string     `json:"license_status" gorm:"type:varchar(16)"`
	SerialNumber      string     `json:"serial_number,omitempty" gorm:"type:varchar(32)"`
	HardwareID        string     `json:"hardware_id,omitempty" gorm:"type:varchar(64)"`
	ActivationDate    *time.Time `json:"activation_date,omitempty"`
	LastValidation    *time.Time `json:"last_validation,omitempty"`
	TemporaryUntil    *time.Time `json:"temporary_until,omitempty"` // expiry of an ungraced offline activation
	UpdatedAt         time.Time  `json:"-"`
}

// Get returns the entitlement row, creating the initial trial state on first run.
func (s entitlementStore) Get() (*Entitlement, error) {
	var e Entitlement
	err := s.db.First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		e = Entitlement{
			TotalTransactions: 0,
			LicenseStatus:     LIC_TRIAL,
		}
		return &e, s.db.Create(&e).Error
	}
	return &e, err
}

func (s entitlementStore) Update(changed *Entitlement) error {
	return s.db.Save(changed).Error
}

// Reset clears all license and trial state back to the initial trial condition.
func (s entitlementStore) Reset() error {
	if err := s.db.Where("1 = 1").Delete(&Entitlement{}).Error; err != nil {
		return err
	}
	return s.db.Create(&Entitlement{
		TotalTransactions: 0,
		LicenseStatus:     LIC_TRIAL,
	}).Error
}

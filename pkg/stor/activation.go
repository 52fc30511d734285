// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package stor

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Activation data model
// An activation binds one license key to one hardware id at one installation
// slot. Activations are never physically deleted by the normal flow, only
// flipped to inactive, so the history remains available for support.
type Activation struct {
	gorm.Model
	UUID         string    `json:"uuid" gorm:"type:varchar(100);uniqueIndex"`
	SerialNumber string    `json:"serial_number" gorm:"type:varchar(32);index"` // implicit foreign key to the license key
	HardwareID   string    `json:"hardware_id" gorm:"type:varchar(64);index"`
	Slot         int       `json:"slot"`
	MachineName  string    `json:"computer_name" gorm:"type:varchar(255)"`
	OS           string    `json:"os,omitempty" gorm:"type:varchar(100)"`
	Status       string    `json:"status" gorm:"type:varchar(16);index"`
	LastSeen     time.Time `json:"last_seen"`
}

func (s activationStore) FindActiveByKey(serial string) (*[]Activation, error) {
	activations := []Activation{}
	return &activations, s.db.Where("serial_number = ? AND status = ?", serial, ACTIVATION_ACTIVE).
		Order("slot ASC").Find(&activations).Error
}

func (s activationStore) GetActive(serial string, hardwareID string) (*Activation, error) {
	var activation Activation
	return &activation, s.db.Where("serial_number = ? AND hardware_id = ? AND status = ?",
		serial, hardwareID, ACTIVATION_ACTIVE).First(&activation).Error
}

func (s activationStore) GetActiveByHardware(hardwareID string) (*Activation, error) {
	var activation Activation
	return &activation, s.db.Where("hardware_id = ? AND status = ?",
		hardwareID, ACTIVATION_ACTIVE).First(&activation).Error
}

func (s activationStore) CountActive(serial string) (int64, error) {
	var count int64
	return count, s.db.Model(Activation{}).
		Where("serial_number = ? AND status = ?", serial, ACTIVATION_ACTIVE).Count(&count).Error
}

func (s activationStore) Get(uuid string) (*Activation, error) {
	var activation Activation
	return &activation, s.db.Where("uuid = ?", uuid).First(&activation).Error
}

func (s activationStore) Create(newActivation *Activation) error {
	return s.db.Create(newActivation).Error
}

func (s activationStore) Update(changedActivation *Activation) error {
	return s.db.Save(changedActivation).Error
}

// Reserve atomically assigns the smallest free slot of the key to the given
// activation and inserts it. The key row is locked for the duration of the
// transaction, which serializes concurrent reservations for the same key:
// the capacity and hardware checks cannot be bypassed by racing a concurrent
// activate against an earlier validate.
// Returns ErrCapacity when all slots are taken and ErrHardwareBound when the
// hardware id is actively bound to another key. Reserving an already bound
// (key, hardware) pair is idempotent and returns the existing slot.
func (s activationStore) Reserve(a *Activation, maxInstallations int) (int, error) {
	var slot int

	err := s.db.Transaction(func(tx *gorm.DB) error {

		// lock the key row; sqlite ignores FOR UPDATE but serializes writers itself
		var key LicenseKey
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("serial = ?", a.SerialNumber).First(&key).Error; err != nil {
			return err
		}

		// idempotent re-activation of the same pair
		var existing Activation
		err := tx.Where("serial_number = ? AND hardware_id = ? AND status = ?",
			a.SerialNumber, a.HardwareID, ACTIVATION_ACTIVE).First(&existing).Error
		if err == nil {
			slot = existing.Slot
			existing.LastSeen = a.LastSeen
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// no hardware double-binding across keys, system-wide
		var bound int64
		if err := tx.Model(Activation{}).
			Where("hardware_id = ? AND status = ? AND serial_number <> ?",
				a.HardwareID, ACTIVATION_ACTIVE, a.SerialNumber).Count(&bound).Error; err != nil {
			return err
		}
		if bound > 0 {
			return ErrHardwareBound
		}

		// re-check capacity inside the same atomic unit that inserts
		var slots []int
		if err := tx.Model(Activation{}).
			Where("serial_number = ? AND status = ?", a.SerialNumber, ACTIVATION_ACTIVE).
			Order("slot ASC").Pluck("slot", &slots).Error; err != nil {
			return err
		}
		if len(slots) >= maxInstallations {
			return ErrCapacity
		}

		// smallest unused positive slot; a deactivated slot becomes reusable
		slot = 1
		for _, taken := range slots {
			if taken != slot {
				break
			}
			slot++
		}

		a.Slot = slot
		a.Status = ACTIVATION_ACTIVE
		if err := tx.Create(a).Error; err != nil {
			// the unique index on active hardware ids catches a concurrent
			// binding of the same machine committed on another key
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrHardwareBound
			}
			return err
		}

		return tx.Model(&key).Update("current_installations", len(slots)+1).Error
	})

	if err != nil {
		return 0, err
	}
	return slot, nil
}

// Release flips the active activation of the given pair to inactive and
// decrements the installation counter, freeing the slot for reuse.
func (s activationStore) Release(serial string, hardwareID string) (*Activation, error) {
	var activation Activation

	err := s.db.Transaction(func(tx *gorm.DB) error {

		var key LicenseKey
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("serial = ?", serial).First(&key).Error; err != nil {
			return err
		}

		if err := tx.Where("serial_number = ? AND hardware_id = ? AND status = ?",
			serial, hardwareID, ACTIVATION_ACTIVE).First(&activation).Error; err != nil {
			return err
		}

		activation.Status = ACTIVATION_INACTIVE
		if err := tx.Save(&activation).Error; err != nil {
			return err
		}

		if key.CurrentInstallations > 0 {
			key.CurrentInstallations--
		}
		return tx.Model(&key).Update("current_installations", key.CurrentInstallations).Error
	})

	if err != nil {
		return nil, err
	}
	return &activation, nil
}

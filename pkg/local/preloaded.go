// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package local

import (
	"time"

	"gorm.io/gorm/clause"
)

// PreloadedKey data model
// Preloaded keys are seeded at install time (development keys, or a
// time-boxed emergency key derived from the machine fingerprint) and
// consulted only when the authority is unreachable. They are a local trust
// bootstrap, not a server-issued credential.
type PreloadedKey struct {
	ID               uint       `json:"-" gorm:"primaryKey"`
	SerialNumber     string     `json:"serial_number" gorm:"type:varchar(32);uniqueIndex"`
	Valid            bool       `json:"valid"`
	MaxInstallations int        `json:"max_installations"`
	LicenseType      string     `json:"license_type" gorm:"type:varchar(16)"`
	Expires          *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the entry is past its expiry date.
func (k *PreloadedKey) Expired(now time.Time) bool {
	return k.Expires != nil && now.After(*k.Expires)
}

func (s preloadedStore) Get(serialNumber string) (*PreloadedKey, error) {
	var key PreloadedKey
	return &key, s.db.Where("serial_number = ?", serialNumber).First(&key).Error
}

func (s preloadedStore) ListValid() (*[]PreloadedKey, error) {
	keys := []PreloadedKey{}
	return &keys, s.db.Where("valid = ?", true).Order("id ASC").Find(&keys).Error
}

// Upsert inserts or replaces an entry; reseeding the same directory is idempotent.
func (s preloadedStore) Upsert(newKey *PreloadedKey) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_number"}},
		UpdateAll: true,
	}).Create(newKey).Error
}

func (s preloadedStore) Count() (int64, error) {
	var count int64
	return count, s.db.Model(PreloadedKey{}).Count(&count).Error
}

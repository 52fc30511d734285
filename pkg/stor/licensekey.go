// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package stor

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// LicenseKey data model
// A key is immutable once issued, except for its status and the
// installation counter, which is only mutated inside the slot
// reservation transaction.
type LicenseKey struct {
	gorm.Model
	Serial               string     `json:"serial" validate:"required" gorm:"type:varchar(32);uniqueIndex"`
	Status               string     `json:"status" validate:"oneof=valid revoked" gorm:"type:varchar(16);index"`
	StatusUpdated        *time.Time `json:"status_updated,omitempty"`
	MaxInstallations     int        `json:"max_installations" validate:"gt=0"`
	CurrentInstallations int        `json:"current_installations"`
	LicenseType          string     `json:"license_type,omitempty" gorm:"type:varchar(16)"`
}

// Validate checks required fields and values
func (k *LicenseKey) Validate() error {

	validate := validator.New()
	return validate.Struct(k)
}

func (s licenseKeyStore) ListAll() (*[]LicenseKey, error) {
	keys := []LicenseKey{}
	// security: limited to 1000 results
	return &keys, s.db.Limit(1000).Order("id DESC").Find(&keys).Error
}

func (s licenseKeyStore) List(pageNum, pageSize int) (*[]LicenseKey, error) {
	keys := []LicenseKey{}
	// pageNum starts at 1
	// result sorted to assure the same order for each request
	return &keys, s.db.Offset((pageNum - 1) * pageSize).Limit(pageSize).Order("id DESC").Find(&keys).Error
}

func (s licenseKeyStore) FindByStatus(status string) (*[]LicenseKey, error) {
	keys := []LicenseKey{}
	return &keys, s.db.Limit(1000).Where("status = ?", status).Order("id DESC").Find(&keys).Error
}

func (s licenseKeyStore) Count() (int64, error) {
	var count int64
	return count, s.db.Model(LicenseKey{}).Count(&count).Error
}

func (s licenseKeyStore) Get(serial string) (*LicenseKey, error) {
	var key LicenseKey
	return &key, s.db.Where("serial = ?", serial).First(&key).Error
}

func (s licenseKeyStore) Create(newKey *LicenseKey) error {
	return s.db.Create(newKey).Error
}

func (s licenseKeyStore) Update(changedKey *LicenseKey) error {
	return s.db.Save(changedKey).Error
}

func (s licenseKeyStore) Delete(deletedKey *LicenseKey) error {
	return s.db.Delete(deletedKey).Error
}

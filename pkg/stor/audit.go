// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package stor

import (
	"time"
)

// AuditEvent data model
// we don't include the full gorm model here, as no update nor soft deletion occurs on events
type AuditEvent struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	Reason       string    `json:"reason,omitempty"`
	SerialNumber string    `json:"serial_number" gorm:"index"`
	HardwareID   string    `json:"hardware_id" gorm:"index"`
}

func (s auditStore) List(serial string) (*[]AuditEvent, error) {
	events := []AuditEvent{}
	// security: limited to 500 results
	return &events, s.db.Limit(500).Where("serial_number = ?", serial).Order("id ASC").Find(&events).Error
}

func (s auditStore) Count(serial string) (int64, error) {
	var count int64
	return count, s.db.Model(AuditEvent{}).Where("serial_number = ?", serial).Count(&count).Error
}

func (s auditStore) Create(newEvent *AuditEvent) error {
	return s.db.Create(newEvent).Error
}

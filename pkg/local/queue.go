// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package local

import (
	"time"
)

// QueueEntry data model
// An entry is recorded whenever an offline temporary grant is issued, to be
// reconciled with the authority once connectivity returns.
type QueueEntry struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	SerialNumber string    `json:"serial_number" gorm:"type:varchar(32);index"`
	HardwareID   string    `json:"hardware_id" gorm:"type:varchar(64)"`
	Timestamp    time.Time `json:"timestamp"`
	Attempts     int       `json:"attempts"`
	Status       string    `json:"status" gorm:"type:varchar(16);index"`
}

func (s queueStore) Pending() (*[]QueueEntry, error) {
	entries := []QueueEntry{}
	return &entries, s.db.Where("status = ?", QUEUE_PENDING).Order("id ASC").Find(&entries).Error
}

func (s queueStore) Create(newEntry *QueueEntry) error {
	return s.db.Create(newEntry).Error
}

func (s queueStore) Update(changedEntry *QueueEntry) error {
	return s.db.Save(changedEntry).Error
}

func (s queueStore) Clear() error {
	return s.db.Where("1 = 1").Delete(&QueueEntry{}).Error
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package stor

import (
	"time"
)

// StatsData data model
type StatsData struct {
	TotalKeys            int    `json:"totalKeys"`
	RevokedKeys          int    `json:"revokedKeys"`
	KeysAtCapacity       int    `json:"keysAtCapacity"`
	ActiveActivations    int    `json:"activeActivations"`
	DistinctMachines     int    `json:"distinctMachines"`
	ActivationsLastMonth int    `json:"activationsLastMonth"`
	ActivationsLastWeek  int    `json:"activationsLastWeek"`
	ActivationsLastDay   int    `json:"activationsLastDay"`
	OldestActivationDate string `json:"oldestActivationDate"`
	LatestActivationDate string `json:"latestActivationDate"`
}

// ConflictedHardwareData lists machines repeatedly rejected for hardware
// conflicts, a hint of license sharing attempts.
type ConflictedHardwareData struct {
	HardwareID   string    `json:"hardware_id"`
	Rejections   int       `json:"rejections"`
	LastRejected time.Time `json:"last_rejected"`
}

// GetStats provides a summary of key metrics about the authority.
func (s statsStore) GetStats(limitToLast12Months bool) (*StatsData, error) {
	var data StatsData

	// Temporary variables for counts (GORM uses int64)
	var totalKeys, revokedKeys, keysAtCapacity, activeActivations, distinctMachines int64

	if err := s.db.Model(&LicenseKey{}).Count(&totalKeys).Error; err != nil {
		return nil, err
	}
	data.TotalKeys = int(totalKeys)

	if err := s.db.Model(&LicenseKey{}).Where("status = ?", KEY_REVOKED).Count(&revokedKeys).Error; err != nil {
		return nil, err
	}
	data.RevokedKeys = int(revokedKeys)

	if err := s.db.Model(&LicenseKey{}).
		Where("current_installations >= max_installations").Count(&keysAtCapacity).Error; err != nil {
		return nil, err
	}
	data.KeysAtCapacity = int(keysAtCapacity)

	if err := s.db.Model(&Activation{}).Where("status = ?", ACTIVATION_ACTIVE).Count(&activeActivations).Error; err != nil {
		return nil, err
	}
	data.ActiveActivations = int(activeActivations)

	if err := s.db.Model(&Activation{}).Where("status = ?", ACTIVATION_ACTIVE).
		Distinct("hardware_id").Count(&distinctMachines).Error; err != nil {
		return nil, err
	}
	data.DistinctMachines = int(distinctMachines)

	// Dates for period calculations
	now := time.Now()
	lastMonth := now.AddDate(0, -1, 0)
	lastWeek := now.AddDate(0, 0, -7)
	lastDay := now.AddDate(0, 0, -1)

	var activationsLastMonth, activationsLastWeek, activationsLastDay int64

	if err := s.db.Model(&Activation{}).Where("created_at >= ?", lastMonth).Count(&activationsLastMonth).Error; err != nil {
		return nil, err
	}
	data.ActivationsLastMonth = int(activationsLastMonth)

	if err := s.db.Model(&Activation{}).Where("created_at >= ?", lastWeek).Count(&activationsLastWeek).Error; err != nil {
		return nil, err
	}
	data.ActivationsLastWeek = int(activationsLastWeek)

	if err := s.db.Model(&Activation{}).Where("created_at >= ?", lastDay).Count(&activationsLastDay).Error; err != nil {
		return nil, err
	}
	data.ActivationsLastDay = int(activationsLastDay)

	// Oldest and latest activation dates
	var oldest, latest Activation
	firstQuery := s.db.Order("created_at ASC")
	if limitToLast12Months {
		firstQuery = firstQuery.Where("created_at >= ?", now.AddDate(-1, 0, 0))
	}
	if err := firstQuery.First(&oldest).Error; err == nil {
		data.OldestActivationDate = oldest.CreatedAt.Format("2006-01-02")
	}
	if err := s.db.Order("created_at DESC").First(&latest).Error; err == nil {
		data.LatestActivationDate = latest.CreatedAt.Format("2006-01-02")
	}

	return &data, nil
}

// GetConflictedHardware lists hardware ids rejected for cross-key conflicts
// at least threshold times.
func (s statsStore) GetConflictedHardware(threshold int) ([]ConflictedHardwareData, error) {
	var data []ConflictedHardwareData

	err := s.db.Model(&AuditEvent{}).
		Select("hardware_id, COUNT(*) as rejections, MAX(timestamp) as last_rejected").
		Where("type = ? AND reason = ?", EVENT_REJECT, "HARDWARE_ALREADY_USED").
		Group("hardware_id").
		Having("COUNT(*) >= ?", threshold).
		Order("rejections DESC").
		Scan(&data).Error
	if err != nil {
		return nil, err
	}

	return data, nil
}

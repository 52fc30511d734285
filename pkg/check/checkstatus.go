// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package check

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/authority"
	"github.com/posworks/activation-server/pkg/serial"
	"github.com/posworks/activation-server/pkg/stor"
)

// CheckStatus verifies the business content of a key status.
func CheckStatus(s *authority.KeyStatus, serialNumber string) error {

	if s.Key == nil {
		return errors.New("the status carries no key record")
	}
	if s.Key.Serial != serial.Normalize(serialNumber) {
		return errors.New("the status reports a different serial number")
	}
	if err := serial.CheckFormat(s.Key.Serial); err != nil {
		return errors.New("the serial number does not match the expected format")
	}
	if s.Key.Status != stor.KEY_VALID && s.Key.Status != stor.KEY_REVOKED {
		return errors.New("unknown key status " + s.Key.Status)
	}

	// the installation counter must agree with the active installation list,
	// and slots must be distinct and within capacity
	active := 0
	slots := map[int]bool{}
	for _, inst := range s.Installations {
		if inst.Status != stor.ACTIVATION_ACTIVE {
			continue
		}
		active++
		if inst.Slot < 1 || inst.Slot > s.Key.MaxInstallations {
			return fmt.Errorf("slot %d is out of range", inst.Slot)
		}
		if slots[inst.Slot] {
			return fmt.Errorf("slot %d is used twice", inst.Slot)
		}
		slots[inst.Slot] = true
	}
	if active != s.Key.CurrentInstallations {
		return fmt.Errorf("the installation counter (%d) does not match the active installations (%d)",
			s.Key.CurrentInstallations, active)
	}

	log.Infof("The key is %s with %d of %d slots in use",
		s.Key.Status, s.Key.CurrentInstallations, s.Key.MaxInstallations)
	return nil
}

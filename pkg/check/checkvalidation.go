// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package check

import (
	"errors"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/authority"
)

// conflict serials are returned masked, only prefix and checksum visible
var maskedSerial = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,5}-\*{4}-\*{6}-[A-Z0-9]{4}$`)

// CheckValidation verifies the business content of a validation result.
func CheckValidation(v *authority.ValidationResult) error {

	if v.Valid {
		if v.Reason != "" {
			return errors.New("a positive validation must not carry a reason code")
		}
		if v.Existing {
			log.Info("This hardware id is already bound to the key")
			return nil
		}
		if !v.CanActivate {
			return errors.New("a positive non-existing validation must allow activation")
		}
		if v.RemainingSlots < 1 {
			return errors.New("a positive non-existing validation must report at least one remaining slot")
		}
		log.Infof("The key can be activated, %d slot(s) remaining", v.RemainingSlots)
		return nil
	}

	// negative validations must carry a known reason
	switch v.Reason {
	case authority.REASON_NOT_FOUND, authority.REASON_REVOKED:
	case authority.REASON_HARDWARE_USED:
		if !maskedSerial.MatchString(v.ConflictSerialNumber) {
			return errors.New("a hardware conflict must carry a masked conflict serial number")
		}
	case authority.REASON_MAX_INSTALLATIONS:
		if len(v.Installations) == 0 {
			return errors.New("a capacity rejection must list the current installations")
		}
	default:
		return errors.New("unknown rejection reason " + v.Reason)
	}

	log.Infof("The key was rejected with reason %s", v.Reason)
	return nil
}

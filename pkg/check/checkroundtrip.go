// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package check

import (
	"bytes"
	"errors"
	"net/http"

	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/api"
	"github.com/posworks/activation-server/pkg/authority"
)

// CheckRoundTrip activates the key for the checker's hardware id, verifies
// the activation response, then deactivates to leave the key as it was
// found. Skipped when the preceding validation said activation would fail.
func CheckRoundTrip(serverURL string, request *api.ActivationRequest, validation *authority.ValidationResult) error {

	if !validation.Valid {
		log.Warn("The key cannot be activated, skipping the round trip")
		return nil
	}

	raw, code, err := postJson(serverURL+"/license/activate", request)
	if err != nil {
		return err
	}
	if code != http.StatusCreated && code != http.StatusOK {
		return errors.New("the activation was rejected with status " + http.StatusText(code))
	}
	err = validateResponse(raw, "data/activation.schema.json")
	if err != nil {
		return err
	}

	activation := new(authority.ActivationResult)
	err = json.Unmarshal(raw, activation)
	if err != nil {
		return err
	}
	if !activation.Success {
		return errors.New("the activation did not succeed: " + activation.Message)
	}
	// re-activating a bound machine may omit the slot, a fresh one names it
	if !validation.Existing && activation.Slot < 1 {
		return errors.New("a fresh activation must name its slot")
	}
	log.Infof("Activated at slot %d", activation.Slot)

	// leave no trace, unless the binding existed before the check
	if validation.Existing {
		return nil
	}

	client := http.Client{}
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, serverURL+"/license/deactivate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("the deactivation failed with status " + http.StatusText(resp.StatusCode))
	}
	log.Info("Deactivated, the slot is free again")
	return nil
}

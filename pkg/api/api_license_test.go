package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"syreclabs.com/go/faker"

	"github.com/posworks/activation-server/pkg/authority"
)

// ---
// License activation utilities
// ---

// newActivationRequest builds a request payload for a given key and machine
func newActivationRequest(serialNumber, hardwareID string) *ActivationRequest {
	return &ActivationRequest{
		SerialNumber: serialNumber,
		HardwareID:   hardwareID,
		ComputerInfo: ComputerInfo{
			Name: faker.Company().Name(),
			OS:   "linux/amd64",
		},
	}
}

func randomHardwareID() string {
	return faker.Lorem().Characters(24)
}

// ---
// License activation Tests
// ---

func TestValidateLicense(t *testing.T) {

	key := createKey(t, 2)
	hw := randomHardwareID()

	// a fresh key validates with full capacity
	req := jsonRequest(t, "POST", "/license/validate", newActivationRequest(key.Serial, hw))
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var result authority.ValidationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if !result.Valid || !result.CanActivate || result.RemainingSlots != 2 {
			t.Fatalf("Incorrect validation result: %+v", result)
		}
	}

	// an unknown serial number is a business rejection, not an http error
	req = jsonRequest(t, "POST", "/license/validate", newActivationRequest("POS-2026-UNKNWN-AAAA", hw))
	response = executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var result authority.ValidationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Valid || result.Reason != authority.REASON_NOT_FOUND {
			t.Fatalf("Failed to reject an unknown key: %+v", result)
		}
	}

	// a request without a hardware id is malformed
	req = jsonRequest(t, "POST", "/license/validate", newActivationRequest(key.Serial, ""))
	response = executeRequest(req)
	checkResponseCode(t, http.StatusBadRequest, response)
}

func TestActivateLicense(t *testing.T) {

	key := createKey(t, 2)

	// fill both slots of the key
	machines := []string{randomHardwareID(), randomHardwareID()}
	for i, hw := range machines {
		req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, hw))
		response := executeRequest(req)
		if checkResponseCode(t, http.StatusCreated, response) {
			var result authority.ActivationResult
			if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
				t.Fatal(err)
			}
			if !result.Success || result.Slot != i+1 {
				t.Fatalf("Incorrect activation result: %+v", result)
			}
		}
	}

	// a third machine conflicts at commit time
	req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, randomHardwareID()))
	response := executeRequest(req)
	checkResponseCode(t, http.StatusConflict, response)

	// and its validation reports the installation list
	req = jsonRequest(t, "POST", "/license/validate", newActivationRequest(key.Serial, randomHardwareID()))
	response = executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var result authority.ValidationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Valid || result.Reason != authority.REASON_MAX_INSTALLATIONS {
			t.Fatalf("Failed to reject a full key: %+v", result)
		}
		if len(result.Installations) != len(machines) {
			t.Fatalf("Incorrect installation list: %+v", result.Installations)
		}
	}

	// activating an unknown key yields 404
	req = jsonRequest(t, "POST", "/license/activate", newActivationRequest("POS-2026-UNKNWN-AAAA", randomHardwareID()))
	response = executeRequest(req)
	checkResponseCode(t, http.StatusNotFound, response)

	// activating a revoked key yields 400
	revoked := createKey(t, 2)
	rreq, _ := http.NewRequest("PUT", "/revoke/"+revoked.Serial, nil)
	executeRequest(rreq)
	req = jsonRequest(t, "POST", "/license/activate", newActivationRequest(revoked.Serial, randomHardwareID()))
	response = executeRequest(req)
	checkResponseCode(t, http.StatusBadRequest, response)
}

func TestDeactivateLicense(t *testing.T) {

	key := createKey(t, 2)
	machines := []string{randomHardwareID(), randomHardwareID()}
	for _, hw := range machines {
		req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, hw))
		executeRequest(req)
	}

	// deactivate the first machine
	req := jsonRequest(t, "PUT", "/license/deactivate", newActivationRequest(key.Serial, machines[0]))
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var result authority.ActivationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if !result.Success || result.Slot != 1 {
			t.Fatalf("Incorrect deactivation result: %+v", result)
		}
	}

	// the freed slot is assigned to the next machine
	req = jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, randomHardwareID()))
	response = executeRequest(req)
	if checkResponseCode(t, http.StatusCreated, response) {
		var result authority.ActivationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Slot != 1 {
			t.Fatalf("Failed to reuse the freed slot: %+v", result)
		}
	}

	// deactivating an unbound machine yields 404
	req = jsonRequest(t, "PUT", "/license/deactivate", newActivationRequest(key.Serial, randomHardwareID()))
	response = executeRequest(req)
	checkResponseCode(t, http.StatusNotFound, response)
}

func TestGetLicenseStatus(t *testing.T) {

	key := createKey(t, 3)
	hw := randomHardwareID()
	req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, hw))
	executeRequest(req)

	req, _ = http.NewRequest("GET", "/license/status/"+key.Serial, nil)
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var status authority.KeyStatus
		if err := json.Unmarshal(response.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.Key == nil || status.Key.Serial != key.Serial {
			t.Fatalf("Incorrect key in the status: %+v", status.Key)
		}
		if len(status.Installations) != 1 {
			t.Fatalf("Incorrect installation list: %+v", status.Installations)
		}
	}

	// an unknown serial number yields 404
	req, _ = http.NewRequest("GET", "/license/status/POS-2026-UNKNWN-AAAA", nil)
	response = executeRequest(req)
	checkResponseCode(t, http.StatusNotFound, response)
}

func TestHardwareConflictAcrossKeys(t *testing.T) {

	first := createKey(t, 2)
	second := createKey(t, 2)
	hw := randomHardwareID()

	req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(first.Serial, hw))
	executeRequest(req)

	// validation on the second key reports the conflict with a masked serial
	req = jsonRequest(t, "POST", "/license/validate", newActivationRequest(second.Serial, hw))
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var result authority.ValidationResult
		if err := json.Unmarshal(response.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Valid || result.Reason != authority.REASON_HARDWARE_USED {
			t.Fatalf("Failed to reject a cross-key conflict: %+v", result)
		}
		if result.ConflictSerialNumber == first.Serial {
			t.Fatal("The conflict serial number must be masked")
		}
	}

	// a forced activation conflicts at commit time
	req = jsonRequest(t, "POST", "/license/activate", newActivationRequest(second.Serial, hw))
	response = executeRequest(req)
	checkResponseCode(t, http.StatusConflict, response)
}

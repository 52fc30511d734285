package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/posworks/activation-server/pkg/stor"
)

func TestGetStats(t *testing.T) {

	key := createKey(t, 3)
	req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(key.Serial, randomHardwareID()))
	executeRequest(req)

	req, _ = http.NewRequest("GET", "/dashdata/data", nil)
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var stats stor.StatsData
		if err := json.Unmarshal(response.Body.Bytes(), &stats); err != nil {
			t.Fatal(err)
		}
		if stats.TotalKeys == 0 || stats.ActiveActivations == 0 {
			t.Fatalf("Incorrect stats: %+v", stats)
		}
	}
}

func TestGetConflictedHardware(t *testing.T) {

	first := createKey(t, 1)
	second := createKey(t, 1)
	hw := randomHardwareID()

	req := jsonRequest(t, "POST", "/license/activate", newActivationRequest(first.Serial, hw))
	executeRequest(req)

	// cross the conflict threshold with repeated rejections
	for i := 0; i < 3; i++ {
		req = jsonRequest(t, "POST", "/license/validate", newActivationRequest(second.Serial, hw))
		executeRequest(req)
	}

	req, _ = http.NewRequest("GET", "/dashdata/overshared", nil)
	response := executeRequest(req)
	if checkResponseCode(t, http.StatusOK, response) {
		var data struct {
			Items []stor.ConflictedHardwareData `json:"items"`
		}
		if err := json.Unmarshal(response.Body.Bytes(), &data); err != nil {
			t.Fatal(err)
		}
		found := false
		for _, h := range data.Items {
			if h.HardwareID == hw {
				found = true
			}
		}
		if !found {
			t.Fatal("Failed to report a conflicted hardware id")
		}
	}
}

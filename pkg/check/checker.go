// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The check package verifies that an activation authority behaves as
// expected for a given serial number: response shapes are validated against
// json schemas and the business content is checked against the serial
// format and slot rules.
package check

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"encoding/json"

	log "github.com/sirupsen/logrus"
	jsonschema "github.com/xeipuuv/gojsonschema"

	"github.com/posworks/activation-server/pkg/api"
	"github.com/posworks/activation-server/pkg/authority"
)

//go:embed data/validation.schema.json data/status.schema.json data/activation.schema.json data/installation.schema.json
var jsfs embed.FS

// Checker verifies the validation, status and activation endpoints of an
// activation authority.
// Parameters:
// serverURL is the base url of the authority
// serialNumber is the serial number used for testing
// hardwareID is the hardware id presented to the authority
// level is a level of tests.
// Access to the key status requires level 2 or upper.
// An activation round trip requires level 3 or upper; it temporarily
// consumes a slot on the tested key.
func Checker(serverURL, serialNumber, hardwareID string, level uint) error {

	log.Info("-- Check the validation endpoint --")

	request := &api.ActivationRequest{
		SerialNumber: serialNumber,
		HardwareID:   hardwareID,
		ComputerInfo: api.ComputerInfo{Name: "activation checker", OS: "check"},
	}

	// check the validity of the validation response using the json schema
	raw, _, err := postJson(serverURL+"/license/validate", request)
	if err != nil {
		log.Errorf("Failed to call the validation endpoint: %v", err)
		return err
	}
	err = validateResponse(raw, "data/validation.schema.json")
	if err != nil {
		log.Errorf("Failed to validate the validation response: %v", err)
		return err
	}

	// parse json data -> validation result
	validation := new(authority.ValidationResult)
	err = json.Unmarshal(raw, validation)
	if err != nil {
		log.Errorf("Failed to unmarshal the validation response: %v", err)
		return err
	}

	// check the validation result
	err = CheckValidation(validation)
	if err != nil {
		log.Errorf("Failed to check the validation result: %v", err)
		return err
	}

	// checking the key status requires level 2+
	if level <= 1 {
		return nil
	}

	log.Info("-- Check the status endpoint --")

	raw, err = getJson(serverURL + "/license/status/" + serialNumber)
	if err != nil {
		log.Errorf("Failed to call the status endpoint: %v", err)
		return err
	}
	err = validateResponse(raw, "data/status.schema.json")
	if err != nil {
		log.Errorf("Failed to validate the status response: %v", err)
		return err
	}

	status := new(authority.KeyStatus)
	err = json.Unmarshal(raw, status)
	if err != nil {
		log.Errorf("Failed to unmarshal the status response: %v", err)
		return err
	}

	err = CheckStatus(status, serialNumber)
	if err != nil {
		log.Errorf("Failed to check the key status: %v", err)
		return err
	}

	// an activation round trip requires level 3+
	if level <= 2 {
		return nil
	}

	log.Info("-- Check the activation round trip --")

	err = CheckRoundTrip(serverURL, request, validation)
	if err != nil {
		log.Errorf("Failed to check the activation round trip: %v", err)
		return err
	}
	return nil
}

// Check the validity of a response using a JSON schema
func validateResponse(raw []byte, schemaPath string) error {

	schemaBytes, err := jsfs.ReadFile(schemaPath)
	if err != nil {
		return err
	}
	installationSchema, err := jsfs.ReadFile("data/installation.schema.json")
	if err != nil {
		return err
	}

	sl := jsonschema.NewSchemaLoader()
	installationLoader := jsonschema.NewStringLoader(string(installationSchema))
	err = sl.AddSchemas(installationLoader)
	if err != nil {
		return err
	}
	schemaLoader := jsonschema.NewStringLoader(string(schemaBytes))
	schema, err := sl.Compile(schemaLoader)
	if err != nil {
		return err
	}

	documentLoader := jsonschema.NewStringLoader(string(raw[:]))

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return err
	}

	if result.Valid() {
		log.Info("The response is valid vs the json schema")
	} else {
		log.Error("The response is invalid vs the json schema")
		for _, desc := range result.Errors() {
			fmt.Printf("- %s\n", desc)
		}
		return errors.New("invalid response") // stop checking
	}
	return nil
}

func postJson(url string, payload interface{}) ([]byte, int, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	client := http.Client{
		Timeout: 5 * time.Second,
	}
	r, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	return raw, r.StatusCode, err
}

func getJson(url string) ([]byte, error) {

	client := http.Client{
		Timeout: 5 * time.Second,
	}
	r, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("the server returned status %d", r.StatusCode)
	}
	return io.ReadAll(r.Body)
}

// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/posworks/activation-server/pkg/authority"
	"github.com/posworks/activation-server/pkg/fingerprint"
	"github.com/posworks/activation-server/pkg/serial"
	"github.com/posworks/activation-server/pkg/stor"
)

// ValidateLicense decides whether the calling machine may activate a key.
// Business rejections are part of the 200 response, with a reason code.
func (a *APICtrl) ValidateLicense(w http.ResponseWriter, r *http.Request) {

	// get the payload
	actRequest := &ActivationRequest{}
	if err := render.Bind(r, actRequest); err != nil {
		log.Errorf("error binding a Validate License request: %v", err)
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	result, err := auth.Validate(serial.Normalize(actRequest.SerialNumber),
		actRequest.HardwareID, actRequest.machineInfo())
	if err != nil {
		render.Render(w, r, ErrServer(err))
		return
	}

	if err := render.Render(w, r, NewValidationResponse(result)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// ActivateLicense binds the calling machine to the key at the smallest free
// slot. A capacity or hardware conflict discovered at commit time yields 409.
func (a *APICtrl) ActivateLicense(w http.ResponseWriter, r *http.Request) {

	// get the payload
	actRequest := &ActivationRequest{}
	if err := render.Bind(r, actRequest); err != nil {
		log.Errorf("error binding an Activate License request: %v", err)
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	result, err := auth.Activate(serial.Normalize(actRequest.SerialNumber),
		actRequest.HardwareID, actRequest.machineInfo())
	if err != nil {
		switch {
		case errors.Is(err, authority.ErrKeyNotFound):
			render.Render(w, r, ErrNotFound)
		case errors.Is(err, authority.ErrKeyRevoked):
			render.Render(w, r, ErrInvalidRequest(err))
		case errors.Is(err, stor.ErrCapacity), errors.Is(err, stor.ErrHardwareBound):
			render.Render(w, r, ErrConflict(err))
		default:
			render.Render(w, r, ErrServer(err))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	if err := render.Render(w, r, NewActivationResponse(result)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// DeactivateLicense unbinds the calling machine from the key, freeing the slot.
func (a *APICtrl) DeactivateLicense(w http.ResponseWriter, r *http.Request) {

	// get the payload
	actRequest := &ActivationRequest{}
	if err := render.Bind(r, actRequest); err != nil {
		log.Errorf("error binding a Deactivate License request: %v", err)
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	result, err := auth.Deactivate(serial.Normalize(actRequest.SerialNumber), actRequest.HardwareID)
	if err != nil {
		render.Render(w, r, ErrNotFound)
		return
	}

	if err := render.Render(w, r, NewActivationResponse(result)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// GetLicenseStatus returns the key record and its installation list.
func (a *APICtrl) GetLicenseStatus(w http.ResponseWriter, r *http.Request) {

	var serialNumber string
	if serialNumber = chi.URLParam(r, "serialNumber"); serialNumber == "" {
		render.Render(w, r, ErrInvalidRequest(errors.New("missing serialNumber parameter")))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	status, err := auth.Status(serial.Normalize(serialNumber))
	if err != nil {
		render.Render(w, r, ErrNotFound)
		return
	}

	if err := render.Render(w, r, NewKeyStatusResponse(status)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// --
// Request and Response payloads for the REST api.
// --

// ComputerInfo describes the calling machine, for support purposes.
type ComputerInfo struct {
	Name string `json:"name,omitempty"`
	OS   string `json:"os,omitempty"`
}

// ActivationRequest is the request payload for validate, activate and
// deactivate calls.
type ActivationRequest struct {
	SerialNumber string       `json:"serialNumber" validate:"required"`
	HardwareID   string       `json:"hardwareId" validate:"required"`
	ComputerInfo ComputerInfo `json:"computerInfo"`
}

// Bind post-processes requests after unmarshalling.
func (a *ActivationRequest) Bind(r *http.Request) error {
	validate := validator.New()
	return validate.Struct(a)
}

func (a *ActivationRequest) machineInfo() *fingerprint.MachineInfo {
	return &fingerprint.MachineInfo{
		Name: a.ComputerInfo.Name,
		OS:   a.ComputerInfo.OS,
	}
}

// ValidationResponse is the response payload for validate calls.
type ValidationResponse struct {
	*authority.ValidationResult
}

// NewValidationResponse creates a rendered validation result
func NewValidationResponse(result *authority.ValidationResult) *ValidationResponse {
	return &ValidationResponse{ValidationResult: result}
}

// Render processes responses before marshalling.
func (v *ValidationResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// ActivationResponse is the response payload for activate and deactivate calls.
type ActivationResponse struct {
	*authority.ActivationResult
}

// NewActivationResponse creates a rendered activation result
func NewActivationResponse(result *authority.ActivationResult) *ActivationResponse {
	return &ActivationResponse{ActivationResult: result}
}

// Render processes responses before marshalling.
func (a *ActivationResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// KeyStatusResponse is the response payload for status calls.
type KeyStatusResponse struct {
	*authority.KeyStatus
}

// NewKeyStatusResponse creates a rendered key status
func NewKeyStatusResponse(status *authority.KeyStatus) *KeyStatusResponse {
	return &KeyStatusResponse{KeyStatus: status}
}

// Render processes responses before marshalling.
func (k *KeyStatusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

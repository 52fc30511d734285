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
	"github.com/posworks/activation-server/pkg/serial"
	"github.com/posworks/activation-server/pkg/stor"
)

// ListKeys lists license keys present in the database.
func (a *APICtrl) ListKeys(w http.ResponseWriter, r *http.Request) {
	log.Debug("List Keys")

	page := r.Context().Value(PageKey).(int)
	perPage := r.Context().Value(PerPageKey).(int)
	var keys *[]stor.LicenseKey
	var err error

	if page == 0 || perPage == 0 {
		keys, err = a.Store.LicenseKey().ListAll()
	} else {
		keys, err = a.Store.LicenseKey().List(page, perPage)
	}
	if err != nil {
		render.Render(w, r, ErrServer(err))
		return
	}
	if err := render.RenderList(w, r, NewKeyListResponse(keys)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// SearchKeys searches license keys corresponding to a specific criteria.
func (a *APICtrl) SearchKeys(w http.ResponseWriter, r *http.Request) {
	var keys *[]stor.LicenseKey
	var err error

	// search by status
	if status := r.URL.Query().Get("status"); status != "" {
		keys, err = a.Store.LicenseKey().FindByStatus(status)
	} else {
		render.Render(w, r, ErrNotFound)
		return
	}
	if err != nil {
		render.Render(w, r, ErrServer(err))
		return
	}
	if err := render.RenderList(w, r, NewKeyListResponse(keys)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// CreateKey issues a new license key with a generated serial number.
func (a *APICtrl) CreateKey(w http.ResponseWriter, r *http.Request) {

	// get the payload
	data := &KeyRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	key, err := auth.IssueKey(data.MaxInstallations, data.LicenseType)
	if err != nil {
		render.Render(w, r, ErrServer(err))
		return
	}

	render.Status(r, http.StatusCreated)
	if err := render.Render(w, r, NewKeyResponse(key)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// GetKey returns a specific license key
func (a *APICtrl) GetKey(w http.ResponseWriter, r *http.Request) {

	var key *stor.LicenseKey
	var err error

	if serialNumber := chi.URLParam(r, "serialNumber"); serialNumber != "" {
		key, err = a.Store.LicenseKey().Get(serial.Normalize(serialNumber))
	} else {
		render.Render(w, r, ErrInvalidRequest(errors.New("missing required serial number")))
		return
	}
	if err != nil {
		render.Render(w, r, ErrNotFound)
		return
	}
	if err := render.Render(w, r, NewKeyResponse(key)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// RevokeKey marks an existing key revoked.
func (a *APICtrl) RevokeKey(w http.ResponseWriter, r *http.Request) {

	var serialNumber string
	if serialNumber = chi.URLParam(r, "serialNumber"); serialNumber == "" {
		render.Render(w, r, ErrInvalidRequest(errors.New("missing required serial number")))
		return
	}

	auth := authority.NewAuthority(a.Config, a.Store)

	key, err := auth.Revoke(serial.Normalize(serialNumber))
	if err != nil {
		render.Render(w, r, ErrNotFound)
		return
	}

	if err := render.Render(w, r, NewKeyResponse(key)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// ListKeyEvents returns the audit trail of a key.
func (a *APICtrl) ListKeyEvents(w http.ResponseWriter, r *http.Request) {

	var serialNumber string
	if serialNumber = chi.URLParam(r, "serialNumber"); serialNumber == "" {
		render.Render(w, r, ErrInvalidRequest(errors.New("missing required serial number")))
		return
	}

	events, err := a.Store.Audit().List(serial.Normalize(serialNumber))
	if err != nil {
		render.Render(w, r, ErrServer(err))
		return
	}

	if err := render.RenderList(w, r, NewAuditEventListResponse(events)); err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
}

// --
// Request and Response payloads for the REST api.
// --

// KeyRequest is the request payload for issuing keys.
type KeyRequest struct {
	MaxInstallations int    `json:"max_installations" validate:"gte=0,lte=100"`
	LicenseType      string `json:"license_type,omitempty" validate:"omitempty,oneof=standard development emergency"`
}

// Bind post-processes requests after unmarshalling.
func (k *KeyRequest) Bind(r *http.Request) error {
	validate := validator.New()
	return validate.Struct(k)
}

// KeyResponse is the response payload for license keys.
type KeyResponse struct {
	*stor.LicenseKey
}

// NewKeyResponse creates a rendered license key
func NewKeyResponse(key *stor.LicenseKey) *KeyResponse {
	return &KeyResponse{LicenseKey: key}
}

// Render processes responses before marshalling.
func (k *KeyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// NewKeyListResponse creates a rendered list of license keys
func NewKeyListResponse(keys *[]stor.LicenseKey) []render.Renderer {
	list := []render.Renderer{}
	for i := range *keys {
		list = append(list, NewKeyResponse(&(*keys)[i]))
	}
	return list
}

// AuditEventResponse is the response payload for audit events.
type AuditEventResponse struct {
	*stor.AuditEvent
}

// Render processes responses before marshalling.
func (e *AuditEventResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// NewAuditEventListResponse creates a rendered list of audit events
func NewAuditEventListResponse(events *[]stor.AuditEvent) []render.Renderer {
	list := []render.Renderer{}
	for i := range *events {
		list = append(list, &AuditEventResponse{AuditEvent: &(*events)[i]})
	}
	return list
}

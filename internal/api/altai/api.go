// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

// API contains state variables used by the Altai V1 API implementation.
type API struct {
	cfg        altai.Configuration
	authDriver altai.AuthDriver
	cloud      altai.CloudDriver
	db         *altai.DB
	auditTrail altai.AuditTrail

	// non-pure functions that can be replaced by deterministic doubles for unit tests
	timeNow           func() time.Time
	generateTokenCode func() string
}

// NewAPI constructs a new API instance.
func NewAPI(cfg altai.Configuration, ad altai.AuthDriver, cd altai.CloudDriver, db *altai.DB, auditTrail altai.AuditTrail) *API {
	return &API{cfg, ad, cd, db, auditTrail, time.Now, altai.GenerateTokenCode}
}

// OverrideTimeNow replaces time.Now with a test double.
func (a *API) OverrideTimeNow(timeNow func() time.Time) *API {
	a.timeNow = timeNow
	return a
}

// OverrideGenerateTokenCode replaces altai.GenerateTokenCode with a test double.
func (a *API) OverrideGenerateTokenCode(generateTokenCode func() string) *API {
	a.generateTokenCode = generateTokenCode
	return a
}

// AddTo implements the httpapi.API interface.
func (a *API) AddTo(r *mux.Router) {
	r.Methods("GET").Path("/v1/").HandlerFunc(a.handleGetRoot)

	r.Methods("GET").Path("/v1/projects").HandlerFunc(a.handleListProjects)
	r.Methods("POST").Path("/v1/projects").HandlerFunc(a.handleCreateProject)
	r.Methods("GET").Path("/v1/projects/{id}").HandlerFunc(a.handleGetProject)
	r.Methods("PUT").Path("/v1/projects/{id}").HandlerFunc(a.handleUpdateProject)
	r.Methods("DELETE").Path("/v1/projects/{id}").HandlerFunc(a.handleDeleteProject)

	r.Methods("GET").Path("/v1/instances").HandlerFunc(a.handleListInstances)
	r.Methods("POST").Path("/v1/instances").HandlerFunc(a.handleCreateInstance)
	r.Methods("GET").Path("/v1/instances/{id}").HandlerFunc(a.handleGetInstance)
	r.Methods("PUT").Path("/v1/instances/{id}").HandlerFunc(a.handleUpdateInstance)
	r.Methods("DELETE").Path("/v1/instances/{id}").HandlerFunc(a.handleDeleteInstance)
	r.Methods("POST").Path("/v1/instances/{id}/reboot").HandlerFunc(a.handleRebootInstance)

	r.Methods("GET").Path("/v1/instance-types").HandlerFunc(a.handleListInstanceTypes)
	r.Methods("POST").Path("/v1/instance-types").HandlerFunc(a.handleCreateInstanceType)
	r.Methods("GET").Path("/v1/instance-types/{id}").HandlerFunc(a.handleGetInstanceType)
	r.Methods("DELETE").Path("/v1/instance-types/{id}").HandlerFunc(a.handleDeleteInstanceType)

	r.Methods("GET").Path("/v1/images").HandlerFunc(a.handleListImages)
	r.Methods("GET").Path("/v1/images/{id}").HandlerFunc(a.handleGetImage)
	r.Methods("PUT").Path("/v1/images/{id}").HandlerFunc(a.handleUpdateImage)
	r.Methods("DELETE").Path("/v1/images/{id}").HandlerFunc(a.handleDeleteImage)

	r.Methods("GET").Path("/v1/networks").HandlerFunc(a.handleListNetworks)
	r.Methods("GET").Path("/v1/networks/{id}").HandlerFunc(a.handleGetNetwork)

	r.Methods("GET").Path("/v1/fw-rule-sets").HandlerFunc(a.handleListFirewallRuleSets)
	r.Methods("GET").Path("/v1/fw-rule-sets/{id}").HandlerFunc(a.handleGetFirewallRuleSet)

	r.Methods("GET").Path("/v1/users").HandlerFunc(a.handleListUsers)
	r.Methods("POST").Path("/v1/users").HandlerFunc(a.handleCreateUser)
	r.Methods("GET").Path("/v1/users/{id}").HandlerFunc(a.handleGetUser)
	r.Methods("PUT").Path("/v1/users/{id}").HandlerFunc(a.handleUpdateUser)
	r.Methods("DELETE").Path("/v1/users/{id}").HandlerFunc(a.handleDeleteUser)

	r.Methods("GET").Path("/v1/me").HandlerFunc(a.handleGetMe)
	r.Methods("GET").Path("/v1/me/ssh-keys").HandlerFunc(a.handleListSSHKeys)
	r.Methods("POST").Path("/v1/me/ssh-keys").HandlerFunc(a.handleCreateSSHKey)
	r.Methods("GET").Path("/v1/me/ssh-keys/{name}").HandlerFunc(a.handleGetSSHKey)
	r.Methods("DELETE").Path("/v1/me/ssh-keys/{name}").HandlerFunc(a.handleDeleteSSHKey)

	r.Methods("GET").Path("/v1/nodes").HandlerFunc(a.handleListNodes)
	r.Methods("GET").Path("/v1/nodes/{name}").HandlerFunc(a.handleGetNode)

	r.Methods("GET").Path("/v1/stats").HandlerFunc(a.handleGetStats)

	r.Methods("GET").Path("/v1/audit-log").HandlerFunc(a.handleListAuditLog)
	r.Methods("GET").Path("/v1/audit-log/{id:[0-9]+}").HandlerFunc(a.handleGetAuditRecord)

	r.Methods("GET").Path("/v1/config").HandlerFunc(a.handleListConfigGroups)
	r.Methods("GET").Path("/v1/config/{group}").HandlerFunc(a.handleGetConfigGroup)
	r.Methods("PUT").Path("/v1/config/{group}").HandlerFunc(a.handleUpdateConfigGroup)

	r.Methods("GET").Path("/v1/invites/{code}").HandlerFunc(a.handleGetInvite)
	r.Methods("PUT").Path("/v1/invites/{code}").HandlerFunc(a.handleAcceptInvite)

	r.Methods("POST").Path("/v1/reset-password").HandlerFunc(a.handleRequestPasswordReset)
	r.Methods("GET").Path("/v1/reset-password/{code}").HandlerFunc(a.handleGetPasswordReset)
	r.Methods("PUT").Path("/v1/reset-password/{code}").HandlerFunc(a.handleCompletePasswordReset)
}

var rootResources = []string{
	"audit-log", "config", "fw-rule-sets", "images", "instance-types", "instances",
	"me", "networks", "nodes", "projects", "stats", "users",
}

func (a *API) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/")
	links := make(map[string]any, len(rootResources))
	for _, name := range rootResources {
		links[name] = a.cfg.Href("/v1/%s", name)
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"version":   "v1",
		"href":      a.cfg.Href("/v1/"),
		"resources": links,
	})
}

////////////////////////////////////////////////////////////////////////////////
// helper functions

func (a *API) authenticate(w http.ResponseWriter, r *http.Request) *altai.UserIdentity {
	uid, err := a.authDriver.AuthenticateRequest(r)
	if apierr.Respond(w, err) {
		return nil
	}
	return uid
}

func (a *API) authenticateAdmin(w http.ResponseWriter, r *http.Request) *altai.UserIdentity {
	uid := a.authenticate(w, r)
	if uid == nil {
		return nil
	}
	if !uid.IsAdmin {
		apierr.Forbidden("this operation is restricted to administrators").WriteTo(w)
		return nil
	}
	return uid
}

// respondWithCloudError is like apierr.Respond, but translates
// altai.ErrNotFound into a 404 response for the given object.
func respondWithCloudError(w http.ResponseWriter, err error, what string, args ...any) bool {
	if errors.Is(err, altai.ErrNotFound) {
		err = apierr.NotFound(what, args...)
	}
	return apierr.Respond(w, err)
}

func respondWithResource(w http.ResponseWriter, code int, res collection.Resource) {
	respondwith.JSON(w, code, schema.ToWire(res))
}

func parseCollectionRequest(w http.ResponseWriter, r *http.Request, s *schema.Schema, extraArgs ...string) (collection.Request, bool) {
	req, err := collection.ParseRequestFrom(r, s, extraArgs...)
	if apierr.Respond(w, err) {
		return collection.Request{}, false
	}
	return req, true
}

func decodeRequestBody(w http.ResponseWriter, r *http.Request, required, allowed *schema.Schema) (map[string]any, bool) {
	data, err := schema.DecodeRequestObject(r, required, allowed)
	if apierr.Respond(w, err) {
		return nil, false
	}
	return data, true
}

// link renders a link object. An empty id yields nil, which renders as null.
func (a *API) link(collectionName, id, name string) any {
	if id == "" {
		return nil
	}
	return map[string]any{
		"id":   id,
		"name": name,
		"href": a.cfg.Href("/v1/%s/%s", collectionName, id),
	}
}

func (a *API) record(r *http.Request, uid altai.UserIdentity, action cadf.Action, statusCode int, resourceType, id, name, projectID string) {
	a.auditTrail.Record(altai.AuditEvent{
		Request:      r,
		User:         uid,
		StatusCode:   statusCode,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   id,
		ResourceName: name,
		ProjectID:    projectID,
	})
}

// stringValue extracts a string from a parsed request object.
func stringValue(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// optionalString extracts a string from a parsed request object. Unlike
// stringValue, it distinguishes between an absent key and an empty string.
func optionalString(data map[string]any, key string) Option[string] {
	s, ok := data[key].(string)
	if !ok {
		return None[string]()
	}
	return Some(s)
}

// timeValue extracts an optional timestamp from a parsed request object.
func timeValue(data map[string]any, key string) *time.Time {
	t, ok := data[key].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

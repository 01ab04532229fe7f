// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/models"
	"github.com/sapcc/altai-api/internal/schema"
)

var auditRecordSchema = schema.MustNewSchema([]schema.Element{
	schema.Int("id"),
	schema.String("resource-type"),
	schema.String("resource-id"),
	schema.String("method"),
	schema.Int("status-code"),
	schema.LinkObject("user", schema.Nullable()),
	schema.LinkObject("project", schema.Nullable()),
	schema.String("remote-address", schema.AllowEmpty()),
	schema.String("message", schema.AllowEmpty()),
	schema.Timestamp("timestamp"),
}, nil)

// auditNames resolves the user and project names shown in audit records.
type auditNames struct {
	users    map[string]string
	projects map[string]string
}

func (a *API) loadAuditNames(r *http.Request) (auditNames, error) {
	projects, err := a.projectNames(r)
	if err != nil {
		return auditNames{}, err
	}
	users, err := a.cloud.ListUsers(r.Context())
	if err != nil {
		return auditNames{}, err
	}
	result := auditNames{
		users:    make(map[string]string, len(users)),
		projects: projects,
	}
	for _, u := range users {
		result.users[u.ID] = u.Name
	}
	return result, nil
}

func (a *API) renderAuditRecord(record models.AuditRecord, names auditNames) collection.Resource {
	return collection.Resource{
		"id":             record.ID,
		"resource-type":  record.ResourceType,
		"resource-id":    record.ResourceID,
		"method":         record.Method,
		"status-code":    record.StatusCode,
		"user":           a.link("users", record.UserID, names.users[record.UserID]),
		"project":        a.link("projects", record.ProjectID, names.projects[record.ProjectID]),
		"remote-address": record.RemoteAddress,
		"message":        record.Message,
		"timestamp":      record.CreatedAt,
		"href":           a.cfg.Href("/v1/audit-log/%d", record.ID),
	}
}

func (a *API) handleListAuditLog(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/audit-log")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, auditRecordSchema)
	if !ok {
		return
	}
	records, err := altai.ListAuditRecords(a.db)
	if apierr.Respond(w, err) {
		return
	}
	names, err := a.loadAuditNames(r)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, len(records))
	for idx, record := range records {
		result[idx] = a.renderAuditRecord(record, names)
	}
	collection.Respond(w, "audit-log", result, None[string](), req)
}

func (a *API) handleGetAuditRecord(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/audit-log/:id")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		apierr.NotFound("audit record %s", idStr).WriteTo(w)
		return
	}
	record, err := altai.FindAuditRecord(a.db, id)
	if apierr.Respond(w, err) {
		return
	}
	if record == nil {
		apierr.NotFound("audit record %d", id).WriteTo(w)
		return
	}
	names, err := a.loadAuditNames(r)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderAuditRecord(*record, names))
}

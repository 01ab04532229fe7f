// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

var projectSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.String("description", schema.AllowEmpty()),
	schema.Boolean("enabled"),
	schema.Int("instances-count"),
}, schema.Subsets{
	"required":  {"name"},
	"create":    {"description"},
	"updatable": {"name", "description"},
})

func (a *API) renderProject(p altai.Project, instanceCount int) collection.Resource {
	return collection.Resource{
		"id":              p.ID,
		"name":            p.Name,
		"description":     p.Description,
		"enabled":         p.Enabled,
		"instances-count": instanceCount,
		"href":            a.cfg.Href("/v1/projects/%s", p.ID),
	}
}

func (a *API) countInstancesByProject(r *http.Request, projectID string) (map[string]int, error) {
	instances, err := a.cloud.ListInstances(r.Context(), projectID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int)
	for _, inst := range instances {
		result[inst.ProjectID]++
	}
	return result, nil
}

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/projects")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, projectSchema)
	if !ok {
		return
	}

	projects, err := a.cloud.ListProjects(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	scope := ""
	if !uid.IsAdmin {
		scope = uid.ProjectID
	}
	counts, err := a.countInstancesByProject(r, scope)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, 0, len(projects))
	for _, p := range projects {
		if uid.CanAccessProject(p.ID) {
			result = append(result, a.renderProject(p, counts[p.ID]))
		}
	}
	collection.Respond(w, "projects", result, None[string](), req)
}

// findProject returns nil after writing a 404 if the project does not exist
// or is not visible to the user.
func (a *API) findProject(w http.ResponseWriter, r *http.Request, uid altai.UserIdentity) *altai.Project {
	id := mux.Vars(r)["id"]
	if !uid.CanAccessProject(id) {
		apierr.NotFound("project %s", id).WriteTo(w)
		return nil
	}
	p, err := a.cloud.GetProject(r.Context(), id)
	if respondWithCloudError(w, err, "project %s", id) {
		return nil
	}
	return &p
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/projects/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	p := a.findProject(w, r, *uid)
	if p == nil {
		return
	}
	counts, err := a.countInstancesByProject(r, p.ID)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderProject(*p, counts[p.ID]))
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/projects")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, projectSchema.Subset("required"), projectSchema.Subset("create"))
	if !ok {
		return
	}

	p, err := a.cloud.CreateProject(r.Context(), altai.ProjectOpts{
		Name:        stringValue(data, "name"),
		Description: optionalString(data, "description"),
	})
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.CreateAction, http.StatusCreated, "projects", p.ID, p.Name, p.ID)
	respondWithResource(w, http.StatusCreated, a.renderProject(p, 0))
}

func (a *API) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/projects/:id")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	p := a.findProject(w, r, *uid)
	if p == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, nil, projectSchema.Subset("updatable"))
	if !ok {
		return
	}

	updated, err := a.cloud.UpdateProject(r.Context(), p.ID, altai.ProjectOpts{
		Name:        stringValue(data, "name"),
		Description: optionalString(data, "description"),
	})
	if respondWithCloudError(w, err, "project %s", p.ID) {
		return
	}
	counts, err := a.countInstancesByProject(r, p.ID)
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.UpdateAction, http.StatusOK, "projects", p.ID, updated.Name, p.ID)
	respondWithResource(w, http.StatusOK, a.renderProject(updated, counts[p.ID]))
}

func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/projects/:id")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	p := a.findProject(w, r, *uid)
	if p == nil {
		return
	}

	counts, err := a.countInstancesByProject(r, p.ID)
	if apierr.Respond(w, err) {
		return
	}
	if counts[p.ID] > 0 {
		apierr.Conflict("project %s still contains %d instances", p.ID, counts[p.ID]).WriteTo(w)
		return
	}

	err = a.cloud.DeleteProject(r.Context(), p.ID)
	if respondWithCloudError(w, err, "project %s", p.ID) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "projects", p.ID, p.Name, p.ID)
	w.WriteHeader(http.StatusNoContent)
}

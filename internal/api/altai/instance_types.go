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

var instanceTypeSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.Int("cpus", schema.MinValue(1)),
	schema.Int("ram", schema.MinValue(1)),
	schema.Int("root-size", schema.MinValue(1)),
	schema.Int("ephemeral-size"),
}, schema.Subsets{
	"required": {"name", "cpus", "ram", "root-size"},
	"optional": {"ephemeral-size"},
})

func (a *API) renderInstanceType(t altai.InstanceType) collection.Resource {
	return collection.Resource{
		"id":             t.ID,
		"name":           t.Name,
		"cpus":           t.CPUs,
		"ram":            t.RAMMB,
		"root-size":      t.RootSizeGB,
		"ephemeral-size": t.EphemeralGB,
		"href":           a.cfg.Href("/v1/instance-types/%s", t.ID),
	}
}

func (a *API) handleListInstanceTypes(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instance-types")
	if a.authenticate(w, r) == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, instanceTypeSchema)
	if !ok {
		return
	}
	instanceTypes, err := a.cloud.ListInstanceTypes(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	result := make([]collection.Resource, len(instanceTypes))
	for idx, t := range instanceTypes {
		result[idx] = a.renderInstanceType(t)
	}
	collection.Respond(w, "instance-types", result, None[string](), req)
}

func (a *API) handleGetInstanceType(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instance-types/:id")
	if a.authenticate(w, r) == nil {
		return
	}
	id := mux.Vars(r)["id"]
	t, err := a.cloud.GetInstanceType(r.Context(), id)
	if respondWithCloudError(w, err, "instance type %s", id) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderInstanceType(t))
}

func (a *API) handleCreateInstanceType(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instance-types")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	data, ok := decodeRequestBody(w, r, instanceTypeSchema.Subset("required"), instanceTypeSchema.Subset("optional"))
	if !ok {
		return
	}

	ephemeralSize, _ := data["ephemeral-size"].(int64)
	t, err := a.cloud.CreateInstanceType(r.Context(), altai.InstanceType{
		Name:        stringValue(data, "name"),
		CPUs:        int(data["cpus"].(int64)),
		RAMMB:       int(data["ram"].(int64)),
		RootSizeGB:  int(data["root-size"].(int64)),
		EphemeralGB: int(ephemeralSize),
	})
	if apierr.Respond(w, err) {
		return
	}
	a.record(r, *uid, cadf.CreateAction, http.StatusCreated, "instance-types", t.ID, t.Name, "")
	respondWithResource(w, http.StatusCreated, a.renderInstanceType(t))
}

func (a *API) handleDeleteInstanceType(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/instance-types/:id")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	id := mux.Vars(r)["id"]
	t, err := a.cloud.GetInstanceType(r.Context(), id)
	if respondWithCloudError(w, err, "instance type %s", id) {
		return
	}

	instances, err := a.cloud.ListInstances(r.Context(), "")
	if apierr.Respond(w, err) {
		return
	}
	for _, inst := range instances {
		if inst.InstanceTypeID == t.ID {
			apierr.Conflict("instance type %s is still in use by instance %s", t.ID, inst.ID).WriteTo(w)
			return
		}
	}

	err = a.cloud.DeleteInstanceType(r.Context(), t.ID)
	if respondWithCloudError(w, err, "instance type %s", t.ID) {
		return
	}
	a.record(r, *uid, cadf.DeleteAction, http.StatusNoContent, "instance-types", t.ID, t.Name, "")
	w.WriteHeader(http.StatusNoContent)
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

var nodeSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
	schema.IPv4("host-ip", schema.Nullable()),
	schema.Int("cpus"),
	schema.Int("cpus-used"),
	schema.Int("memory"),
	schema.Int("memory-used"),
	schema.Int("disk"),
	schema.Int("disk-used"),
	schema.Int("instances-count"),
}, nil)

func (a *API) renderNode(n altai.Node) collection.Resource {
	res := collection.Resource{
		"name":            n.Name,
		"host-ip":         nil,
		"cpus":            n.CPUs,
		"cpus-used":       n.CPUsUsed,
		"memory":          n.MemoryMB,
		"memory-used":     n.MemoryMBUsed,
		"disk":            n.DiskGB,
		"disk-used":       n.DiskGBUsed,
		"instances-count": n.Instances,
		"href":            a.cfg.Href("/v1/nodes/%s", n.Name),
	}
	if n.HostIP != "" {
		res["host-ip"] = n.HostIP
	}
	return res
}

func (a *API) handleListNodes(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/nodes")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, nodeSchema)
	if !ok {
		return
	}
	nodes, err := a.cloud.ListNodes(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	result := make([]collection.Resource, len(nodes))
	for idx, n := range nodes {
		result[idx] = a.renderNode(n)
	}
	collection.Respond(w, "nodes", result, None[string](), req)
}

func (a *API) handleGetNode(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/nodes/:name")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	name := mux.Vars(r)["name"]
	nodes, err := a.cloud.ListNodes(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	for _, n := range nodes {
		if n.Name == name {
			respondWithResource(w, http.StatusOK, a.renderNode(n))
			return
		}
	}
	apierr.NotFound("node %s", name).WriteTo(w)
}

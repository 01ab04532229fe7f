// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"net/http"

	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/altai-api/internal/apierr"
)

func (a *API) handleGetStats(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/stats")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	ctx := r.Context()

	projects, err := a.cloud.ListProjects(ctx)
	if apierr.Respond(w, err) {
		return
	}
	users, err := a.cloud.ListUsers(ctx)
	if apierr.Respond(w, err) {
		return
	}
	instances, err := a.cloud.ListInstances(ctx, "")
	if apierr.Respond(w, err) {
		return
	}
	instanceTypes, err := a.cloud.ListInstanceTypes(ctx)
	if apierr.Respond(w, err) {
		return
	}
	nodes, err := a.cloud.ListNodes(ctx)
	if apierr.Respond(w, err) {
		return
	}

	instancesByState := make(map[string]int)
	for _, inst := range instances {
		instancesByState[inst.Status]++
	}
	var cpus, cpusUsed, memory, memoryUsed int
	for _, n := range nodes {
		cpus += n.CPUs
		cpusUsed += n.CPUsUsed
		memory += n.MemoryMB
		memoryUsed += n.MemoryMBUsed
	}

	respondwith.JSON(w, http.StatusOK, map[string]any{
		"projects":           len(projects),
		"users":              len(users),
		"instances":          len(instances),
		"instances-by-state": instancesByState,
		"instance-types":     len(instanceTypes),
		"nodes":              len(nodes),
		"cpus":               cpus,
		"cpus-used":          cpusUsed,
		"memory":             memory,
		"memory-used":        memoryUsed,
		"href":               a.cfg.Href("/v1/stats"),
	})
}

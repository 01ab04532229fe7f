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

var networkSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.CIDR("cidr", schema.Nullable()),
	schema.LinkObject("project", schema.Nullable()),
	schema.Boolean("shared"),
}, nil)

var firewallRuleSetSchema = schema.MustNewSchema([]schema.Element{
	schema.String("id"),
	schema.String("name"),
	schema.String("description", schema.AllowEmpty()),
	schema.LinkObject("project", schema.Nullable()),
}, nil)

////////////////////////////////////////////////////////////////////////////////
// networks

func isNetworkVisible(uid altai.UserIdentity, n altai.Network) bool {
	return n.Shared || uid.CanAccessProject(n.ProjectID)
}

func (a *API) renderNetwork(n altai.Network, projectNames map[string]string) collection.Resource {
	res := collection.Resource{
		"id":      n.ID,
		"name":    n.Name,
		"cidr":    nil,
		"project": a.link("projects", n.ProjectID, projectNames[n.ProjectID]),
		"shared":  n.Shared,
		"href":    a.cfg.Href("/v1/networks/%s", n.ID),
	}
	if n.CIDR != "" {
		res["cidr"] = n.CIDR
	}
	return res
}

func (a *API) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/networks")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, networkSchema)
	if !ok {
		return
	}
	networks, err := a.cloud.ListNetworks(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, 0, len(networks))
	for _, n := range networks {
		if isNetworkVisible(*uid, n) {
			result = append(result, a.renderNetwork(n, names))
		}
	}
	collection.Respond(w, "networks", result, None[string](), req)
}

func (a *API) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/networks/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	id := mux.Vars(r)["id"]
	n, err := a.cloud.GetNetwork(r.Context(), id)
	if respondWithCloudError(w, err, "network %s", id) {
		return
	}
	if !isNetworkVisible(*uid, n) {
		apierr.NotFound("network %s", id).WriteTo(w)
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderNetwork(n, names))
}

////////////////////////////////////////////////////////////////////////////////
// firewall rule sets

func (a *API) renderFirewallRuleSet(rs altai.FirewallRuleSet, projectNames map[string]string) collection.Resource {
	rules := make([]any, len(rs.Rules))
	for idx, rule := range rs.Rules {
		rules[idx] = map[string]any{
			"id":       rule.ID,
			"protocol": rule.Protocol,
			"port-min": rule.PortMin,
			"port-max": rule.PortMax,
			"source":   rule.Source,
		}
	}
	return collection.Resource{
		"id":          rs.ID,
		"name":        rs.Name,
		"description": rs.Description,
		"project":     a.link("projects", rs.ProjectID, projectNames[rs.ProjectID]),
		"rules":       rules,
		"href":        a.cfg.Href("/v1/fw-rule-sets/%s", rs.ID),
	}
}

func (a *API) handleListFirewallRuleSets(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/fw-rule-sets")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, firewallRuleSetSchema)
	if !ok {
		return
	}
	ruleSets, err := a.cloud.ListFirewallRuleSets(r.Context())
	if apierr.Respond(w, err) {
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}

	result := make([]collection.Resource, 0, len(ruleSets))
	for _, rs := range ruleSets {
		if uid.CanAccessProject(rs.ProjectID) {
			result = append(result, a.renderFirewallRuleSet(rs, names))
		}
	}
	collection.Respond(w, "fw-rule-sets", result, None[string](), req)
}

func (a *API) handleGetFirewallRuleSet(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/fw-rule-sets/:id")
	uid := a.authenticate(w, r)
	if uid == nil {
		return
	}
	id := mux.Vars(r)["id"]
	rs, err := a.cloud.GetFirewallRuleSet(r.Context(), id)
	if respondWithCloudError(w, err, "firewall rule set %s", id) {
		return
	}
	if !uid.CanAccessProject(rs.ProjectID) {
		apierr.NotFound("firewall rule set %s", id).WriteTo(w)
		return
	}
	names, err := a.projectNames(r)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderFirewallRuleSet(rs, names))
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-gorp/gorp/v3"
	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/mitchellh/mapstructure"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
	"github.com/sapcc/altai-api/internal/collection"
	"github.com/sapcc/altai-api/internal/schema"
)

// configGroup is a set of runtime settings that admins can change through
// the API. Values that were never set report their default.
type configGroup struct {
	Schema   *schema.Schema
	Defaults map[string]any
}

var configGroups = map[string]configGroup{
	"general": {
		Schema: schema.MustNewSchema([]schema.Element{
			schema.String("installation-name"),
		}, nil),
		Defaults: map[string]any{
			"installation-name": "Altai",
		},
	},
	"invitations": {
		Schema: schema.MustNewSchema([]schema.Element{
			schema.Boolean("enabled"),
			schema.List(schema.String("domains-allowed")),
		}, nil),
		Defaults: map[string]any{
			"enabled":         false,
			"domains-allowed": []any{},
		},
	},
	"password-reset": {
		Schema: schema.MustNewSchema([]schema.Element{
			schema.Boolean("enabled"),
		}, nil),
		Defaults: map[string]any{
			"enabled": false,
		},
	},
}

var configGroupSchema = schema.MustNewSchema([]schema.Element{
	schema.String("name"),
}, nil)

// loadConfigGroup returns the values of the given group with defaults
// applied.
func loadConfigGroup(db sqlext.Executor, name string) (map[string]any, error) {
	group := configGroups[name]
	stored, err := altai.GetConfigGroup(db, name)
	if err != nil {
		return nil, err
	}
	result := maps.Clone(group.Defaults)
	for key, value := range stored {
		if group.Schema.Has(key) {
			result[key] = value
		}
	}
	return result, nil
}

// invitationSettings is the typed form of the "invitations" config group.
type invitationSettings struct {
	Enabled        bool     `mapstructure:"enabled"`
	DomainsAllowed []string `mapstructure:"domains-allowed"`
}

// passwordResetSettings is the typed form of the "password-reset" config group.
type passwordResetSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// decodeConfigGroup loads the given group with defaults applied, and decodes
// it into a settings struct.
func decodeConfigGroup(db sqlext.Executor, name string, target any) error {
	values, err := loadConfigGroup(db, name)
	if err != nil {
		return err
	}
	err = mapstructure.Decode(values, target)
	if err != nil {
		return fmt.Errorf("cannot decode config group %s: %w", name, err)
	}
	return nil
}

func (a *API) renderConfigGroup(name string, values map[string]any) collection.Resource {
	res := maps.Clone(values)
	res["name"] = name
	res["href"] = a.cfg.Href("/v1/config/%s", name)
	return res
}

func (a *API) handleListConfigGroups(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/config")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	req, ok := parseCollectionRequest(w, r, configGroupSchema)
	if !ok {
		return
	}

	var result []collection.Resource
	for _, name := range slices.Sorted(maps.Keys(configGroups)) {
		values, err := loadConfigGroup(a.db, name)
		if apierr.Respond(w, err) {
			return
		}
		result = append(result, a.renderConfigGroup(name, values))
	}
	collection.Respond(w, "config", result, None[string](), req)
}

func findConfigGroupName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["group"]
	if _, exists := configGroups[name]; !exists {
		apierr.NotFound("config group %s", name).WriteTo(w)
		return "", false
	}
	return name, true
}

func (a *API) handleGetConfigGroup(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/config/:group")
	if a.authenticateAdmin(w, r) == nil {
		return
	}
	name, ok := findConfigGroupName(w, r)
	if !ok {
		return
	}
	values, err := loadConfigGroup(a.db, name)
	if apierr.Respond(w, err) {
		return
	}
	respondWithResource(w, http.StatusOK, a.renderConfigGroup(name, values))
}

func (a *API) handleUpdateConfigGroup(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/config/:group")
	uid := a.authenticateAdmin(w, r)
	if uid == nil {
		return
	}
	name, ok := findConfigGroupName(w, r)
	if !ok {
		return
	}
	data, ok := decodeRequestBody(w, r, nil, configGroups[name].Schema)
	if !ok {
		return
	}

	tx, err := a.db.Begin()
	if apierr.Respond(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)
	err = storeConfigParams(tx, name, data)
	if apierr.Respond(w, err) {
		return
	}
	err = tx.Commit()
	if apierr.Respond(w, err) {
		return
	}

	values, err := loadConfigGroup(a.db, name)
	if apierr.Respond(w, err) {
		return
	}
	keys := slices.Sorted(maps.Keys(data))
	a.auditTrail.Record(altai.AuditEvent{
		Request:      r,
		User:         *uid,
		StatusCode:   http.StatusOK,
		Action:       cadf.UpdateAction,
		ResourceType: "config",
		ResourceID:   name,
		ResourceName: name,
		Message:      "changed: " + strings.Join(keys, ", "),
	})
	respondWithResource(w, http.StatusOK, a.renderConfigGroup(name, values))
}

func storeConfigParams(tx *gorp.Transaction, groupName string, data map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(data)) {
		err := altai.SetConfigParam(tx, groupName, key, data[key])
		if err != nil {
			return err
		}
	}
	return nil
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/easypg"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/test"
)

func configGroupJSON(name string, values assert.JSONObject) assert.JSONObject {
	values["name"] = name
	values["href"] = href + "/v1/config/" + name
	return values
}

func TestConfigGroups(t *testing.T) {
	s := setupWithFixtures(t)
	tr, tr0 := easypg.NewTracker(t, s.DB.Db)
	tr0.AssertEmpty()

	for _, path := range []string{"/v1/config", "/v1/config/general"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         path,
			Header:       memberHeaders,
			ExpectStatus: http.StatusForbidden,
			ExpectBody:   forbiddenForNonAdmins,
		}.Check(t, s.Handler)
	}

	// without stored values, all groups report their defaults
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/config",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody: collectionOf("config", 3,
			configGroupJSON("general", assert.JSONObject{"installation-name": "Altai"}),
			configGroupJSON("invitations", assert.JSONObject{"enabled": false, "domains-allowed": []string{}}),
			configGroupJSON("password-reset", assert.JSONObject{"enabled": false}),
		),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/config?name:startswith=p",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody: collectionOf("config", 1,
			configGroupJSON("password-reset", assert.JSONObject{"enabled": false}),
		),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/config/unknown",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "config group unknown not found"),
	}.Check(t, s.Handler)

	// invalid updates
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/config/invitations",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"installation-name": "Altai"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("UnknownElement", "Unknown resource element: installation-name", "element-name", "installation-name"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/config/invitations",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"enabled": "yes"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element enabled",
			"element-name", "enabled", "element-value", "yes", "expected-type", "boolean"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/config/invitations",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"domains-allowed": []any{"example.com", ""}},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element domains-allowed: empty string is not allowed",
			"element-name", "domains-allowed", "element-value", "", "expected-type", "string",
			"reason", "empty string is not allowed"),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEmpty()

	// partial update
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/config/invitations",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"domains-allowed": []string{"example.com", "example.org"}},
		ExpectStatus: http.StatusOK,
		ExpectBody: configGroupJSON("invitations", assert.JSONObject{
			"enabled":         false,
			"domains-allowed": []string{"example.com", "example.org"},
		}),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEqualf(`
		INSERT INTO audit_log (id, resource_type, resource_id, method, status_code, user_id, project_id, remote_address, message, created_at) VALUES (1, 'config', 'invitations', 'update', 200, 'u-admin', '', '192.0.2.1', 'changed: domains-allowed', %[1]d);
		INSERT INTO config_params (group_name, key, value_json) VALUES ('invitations', 'domains-allowed', '["example.com","example.org"]');
	`, s.Clock.Now().Unix())
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.UpdateAction,
		ReasonCode: http.StatusOK,
		Target:     cadf.Resource{TypeURI: "altai/config", ID: "invitations", Name: "invitations"},
	})

	s.Clock.StepBy(time.Minute)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/config/invitations",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"enabled": true, "domains-allowed": []string{}},
		ExpectStatus: http.StatusOK,
		ExpectBody: configGroupJSON("invitations", assert.JSONObject{
			"enabled":         true,
			"domains-allowed": []string{},
		}),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEqualf(`
		INSERT INTO audit_log (id, resource_type, resource_id, method, status_code, user_id, project_id, remote_address, message, created_at) VALUES (2, 'config', 'invitations', 'update', 200, 'u-admin', '', '192.0.2.1', 'changed: domains-allowed, enabled', %[1]d);
		UPDATE config_params SET value_json = '[]' WHERE group_name = 'invitations' AND key = 'domains-allowed';
		INSERT INTO config_params (group_name, key, value_json) VALUES ('invitations', 'enabled', 'true');
	`, s.Clock.Now().Unix())

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/config/general",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   configGroupJSON("general", assert.JSONObject{"installation-name": "Altai"}),
	}.Check(t, s.Handler)
}

func TestAuditLog(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log",
		Header:       memberHeaders,
		ExpectStatus: http.StatusForbidden,
		ExpectBody:   forbiddenForNonAdmins,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("audit-log", 0),
	}.Check(t, s.Handler)

	// generate some records
	setConfig(t, s, "general", assert.JSONObject{"installation-name": "Test Cloud"})
	s.Clock.StepBy(time.Hour)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)

	configRecord := assert.JSONObject{
		"id":             1,
		"resource-type":  "config",
		"resource-id":    "general",
		"method":         "update",
		"status-code":    200,
		"user":           linkTo("users", "u-admin", "admin"),
		"project":        nil,
		"remote-address": "192.0.2.1",
		"message":        "changed: installation-name",
		"timestamp":      "2025-01-01T00:00:00Z",
		"href":           href + "/v1/audit-log/1",
	}
	instanceRecord := assert.JSONObject{
		"id":             2,
		"resource-type":  "instances",
		"resource-id":    "i-1",
		"method":         "delete",
		"status-code":    204,
		"user":           linkTo("users", "u-1", "alice"),
		"project":        linkTo("projects", "p-1", "alpha"),
		"remote-address": "192.0.2.1",
		"message":        "",
		"timestamp":      "2025-01-01T01:00:00Z",
		"href":           href + "/v1/audit-log/2",
	}

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("audit-log", 2, configRecord, instanceRecord),
	}.Check(t, s.Handler)
	filterTests := map[string][]assert.JSONObject{
		"resource-type:eq=instances":        {instanceRecord},
		"user:eq=u-admin":                   {configRecord},
		"project:exists=false":              {configRecord},
		"status-code:ge=201":                {instanceRecord},
		"timestamp:lt=2025-01-01T00:30:00Z": {configRecord},
		"method:in=create|update":           {configRecord},
		"message:startswith=changed":        {configRecord},
		"sortby=id:desc":                    {instanceRecord, configRecord},
		"sortby=user.name:desc":             {instanceRecord, configRecord},
	}
	for query, expected := range filterTests {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/v1/audit-log?" + query,
			Header:       test.AdminHeaders,
			ExpectStatus: http.StatusOK,
			ExpectBody:   collectionOf("audit-log", len(expected), expected...),
		}.Check(t, s.Handler)
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log?remote-address:eq=192.0.2.1&sortby=timestamp:desc&limit=1",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("audit-log", 2, instanceRecord),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log?limit=1&limit=2",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("InvalidRequest", "Invalid request: Duplicated argument: limit", "reason", "Duplicated argument: limit"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log/2",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   instanceRecord,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/audit-log/99",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "audit record 99 not found"),
	}.Check(t, s.Handler)
}

func TestNodesAndStats(t *testing.T) {
	s := setupWithFixtures(t)
	s.CD.AddNode(altai.Node{
		Name: "node-1", HostIP: "10.1.0.1", CPUs: 16, CPUsUsed: 9, MemoryMB: 65536, MemoryMBUsed: 17408,
		DiskGB: 500, DiskGBUsed: 90, Instances: 2,
	})
	s.CD.AddNode(altai.Node{Name: "node-2", CPUs: 8, MemoryMB: 32768, DiskGB: 250})

	node1 := assert.JSONObject{
		"name":            "node-1",
		"host-ip":         "10.1.0.1",
		"cpus":            16,
		"cpus-used":       9,
		"memory":          65536,
		"memory-used":     17408,
		"disk":            500,
		"disk-used":       90,
		"instances-count": 2,
		"href":            href + "/v1/nodes/node-1",
	}
	node2 := assert.JSONObject{
		"name":            "node-2",
		"host-ip":         nil,
		"cpus":            8,
		"cpus-used":       0,
		"memory":          32768,
		"memory-used":     0,
		"disk":            250,
		"disk-used":       0,
		"instances-count": 0,
		"href":            href + "/v1/nodes/node-2",
	}

	for _, path := range []string{"/v1/nodes", "/v1/nodes/node-1", "/v1/stats"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         path,
			Header:       memberHeaders,
			ExpectStatus: http.StatusForbidden,
			ExpectBody:   forbiddenForNonAdmins,
		}.Check(t, s.Handler)
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/nodes",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("nodes", 2, node1, node2),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/nodes?host-ip:exists=true&instances-count:gt=0",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("nodes", 1, node1),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/nodes?sortby=memory",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("nodes", 2, node2, node1),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/nodes/node-2",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   node2,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/nodes/node-3",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "node node-3 not found"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/stats",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"projects":           2,
			"users":              3,
			"instances":          2,
			"instances-by-state": assert.JSONObject{"ACTIVE": 1, "SHUTOFF": 1},
			"instance-types":     2,
			"nodes":              2,
			"cpus":               24,
			"cpus-used":          9,
			"memory":             98304,
			"memory-used":        17408,
			"href":               href + "/v1/stats",
		},
	}.Check(t, s.Handler)
}

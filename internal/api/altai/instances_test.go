// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1_test

import (
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/easypg"

	"github.com/sapcc/altai-api/internal/test"
)

func instanceJSON(id string, extra assert.JSONObject) assert.JSONObject {
	result := assert.JSONObject{
		"id":          id,
		"ipv4":        nil,
		"expires-at":  nil,
		"remind-at":   nil,
		"href":        href + "/v1/instances/" + id,
		"reboot-href": href + "/v1/instances/" + id + "/reboot",
	}
	for key, value := range extra {
		result[key] = value
	}
	return result
}

var (
	webInstance = instanceJSON("i-1", assert.JSONObject{
		"name":          "web",
		"state":         "ACTIVE",
		"project":       linkTo("projects", "p-1", "alpha"),
		"created-by":    linkTo("users", "u-1", "alice"),
		"instance-type": linkTo("instance-types", "it-1", "small"),
		"image":         linkTo("images", "img-1", "ubuntu"),
		"ipv4":          "10.0.0.5",
		"created":       "2024-06-01T12:00:00Z",
		"updated":       "2024-07-01T12:00:00Z",
	})
	dbInstance = instanceJSON("i-2", assert.JSONObject{
		"name":          "db",
		"state":         "SHUTOFF",
		"project":       linkTo("projects", "p-2", "beta"),
		"created-by":    linkTo("users", "u-2", "bob"),
		"instance-type": linkTo("instance-types", "it-2", "large"),
		"image":         linkTo("images", "img-2", "private"),
		"created":       "2024-06-01T12:00:00Z",
		"updated":       "2024-06-01T12:00:00Z",
	})
)

func TestListInstances(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("instances", 2, webInstance, dbInstance),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances",
		Header:       memberHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("instances", 1, webInstance),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances",
		Header:       test.Headers("u-3", "", "member"),
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("instances", 0),
	}.Check(t, s.Handler)

	// search filters on different element types
	filterTests := map[string][]assert.JSONObject{
		"project:eq=p-2":                       {dbInstance},
		"project:in=p-1|p-2":                   {webInstance, dbInstance},
		"ipv4:exists=false":                    {dbInstance},
		"ipv4:exists=true":                     {webInstance},
		"state:in=ACTIVE|BUILD":                {webInstance},
		"updated:gt=2024-06-15T00:00:00Z":      {webInstance},
		"updated:le=2024-06-01T12:00:00Z":      {dbInstance},
		"expires-at:le=2030-01-01T00:00:00Z":   {webInstance, dbInstance},
		"expires-at:ge=2000-01-01T00:00:00Z":   {},
		"name:startswith=w&state:eq=ACTIVE":    {webInstance},
		"name:startswith=w&state:eq=SHUTOFF":   {},
		"instance-type:eq=it-2&image:eq=img-2": {dbInstance},
		"created-by:exists=true&sortby=name":   {dbInstance, webInstance},
		"sortby=instance-type.name:desc,name":  {webInstance, dbInstance},
		"sortby=project.name:desc":             {dbInstance, webInstance},
	}
	for query, expected := range filterTests {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/v1/instances?" + query,
			Header:       test.AdminHeaders,
			ExpectStatus: http.StatusOK,
			ExpectBody:   collectionOf("instances", len(expected), expected...),
		}.Check(t, s.Handler)
	}

	// size counts all matches, even beyond the requested page
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances?ipv4:exists=true&offset=5",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("instances", 1),
	}.Check(t, s.Handler)

	// malformed filters
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances?ipv4:eq=10.0.0",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidArgumentValue", `Invalid value for argument ipv4: "10.0.0" does not have 4 octets`,
			"argument-name", "ipv4", "argument-value", "10.0.0", "expected-type", "ipv4",
			"reason", `"10.0.0" does not have 4 octets`),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances?name:gt=a",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidRequest", "Invalid request: No search filter gt defined for element name of type string",
			"reason", "No search filter gt defined for element name of type string"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances?sortby=project",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidRequest", `Invalid request: Bad parameter for sortby: "project"`,
			"reason", `Bad parameter for sortby: "project"`),
	}.Check(t, s.Handler)
}

func TestGetInstance(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   webInstance,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances/i-2",
		Header:       memberHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "instance i-2 not found"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances/i-2",
		Header:       otherMemberHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   dbInstance,
	}.Check(t, s.Handler)
}

func TestCreateInstance(t *testing.T) {
	s := setupWithFixtures(t, test.WithDefaultInstanceTTL(24*time.Hour))
	tr, tr0 := easypg.NewTracker(t, s.DB.Db)
	tr0.AssertEmpty()

	body := assert.JSONObject{
		"name":          "worker",
		"project":       "p-1",
		"instance-type": "it-2",
		"image":         "img-1",
	}

	// members cannot create instances in other projects
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances",
		Header:       otherMemberHeaders,
		Body:         body,
		ExpectStatus: http.StatusForbidden,
		ExpectBody:   errorBody("Forbidden", "Forbidden", "reason", "cannot create instances in project p-1"),
	}.Check(t, s.Handler)

	// references must point to visible objects
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"name": "worker", "project": "p-1", "instance-type": "it-2", "image": "img-2"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element image: no such image",
			"element-name", "image", "element-value", "img-2", "expected-type", "link object", "reason", "no such image"),
	}.Check(t, s.Handler)

	// dates must be consistent
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"name": "worker", "project": "p-1", "instance-type": "it-2", "image": "img-1", "expires-at": "2024-12-31T00:00:00Z"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element expires-at: must be in the future",
			"element-name", "expires-at", "element-value", "2024-12-31T00:00:00Z", "expected-type", "timestamp", "reason", "must be in the future"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"name": "worker", "project": "p-1", "instance-type": "it-2", "image": "img-1", "remind-at": "2025-01-03T00:00:00Z"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element remind-at: must be before expires-at",
			"element-name", "remind-at", "element-value", "2025-01-03T00:00:00Z", "expected-type", "timestamp", "reason", "must be before expires-at"),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEmpty()
	s.Auditor.ExpectEvents(t /*, nothing */)

	// with the default TTL
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances",
		Header:       memberHeaders,
		Body:         body,
		ExpectStatus: http.StatusCreated,
		ExpectBody: instanceJSON("instance-1", assert.JSONObject{
			"name":          "worker",
			"state":         "BUILD",
			"project":       linkTo("projects", "p-1", "alpha"),
			"created-by":    nil,
			"instance-type": linkTo("instance-types", "it-2", "large"),
			"image":         linkTo("images", "img-1", "ubuntu"),
			"created":       "2025-01-01T00:00:00Z",
			"updated":       "2025-01-01T00:00:00Z",
			"expires-at":    "2025-01-02T00:00:00Z",
		}),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEqualf(`
		INSERT INTO audit_log (id, resource_type, resource_id, method, status_code, user_id, project_id, remote_address, message, created_at) VALUES (1, 'instances', 'instance-1', 'create', 201, 'u-1', 'p-1', '192.0.2.1', '', %[1]d);
		INSERT INTO instance_data (instance_id, project_id, expires_at, remind_at, last_reminded_at, next_expiry_check_at) VALUES ('instance-1', 'p-1', %[2]d, NULL, NULL, NULL);
	`, s.Clock.Now().Unix(), s.Clock.Now().Add(24*time.Hour).Unix())
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.CreateAction,
		ReasonCode: http.StatusCreated,
		Target: cadf.Resource{
			TypeURI:   "altai/instances",
			ID:        "instance-1",
			Name:      "worker",
			ProjectID: "p-1",
		},
	})

	// with explicit dates, and without expiry
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/instances",
		Header: test.AdminHeaders,
		Body: assert.JSONObject{
			"name":          "forever",
			"project":       "p-2",
			"instance-type": "it-1",
			"image":         "img-2",
			"expires-at":    nil,
			"remind-at":     "2025-02-01T00:00:00Z",
		},
		ExpectStatus: http.StatusCreated,
		ExpectBody: instanceJSON("instance-2", assert.JSONObject{
			"name":          "forever",
			"state":         "BUILD",
			"project":       linkTo("projects", "p-2", "beta"),
			"created-by":    nil,
			"instance-type": linkTo("instance-types", "it-1", "small"),
			"image":         linkTo("images", "img-2", "private"),
			"created":       "2025-01-01T00:00:00Z",
			"updated":       "2025-01-01T00:00:00Z",
			"remind-at":     "2025-02-01T00:00:00Z",
		}),
	}.Check(t, s.Handler)
	tr.DBChanges().AssertEqualf(`
		INSERT INTO audit_log (id, resource_type, resource_id, method, status_code, user_id, project_id, remote_address, message, created_at) VALUES (2, 'instances', 'instance-2', 'create', 201, 'u-admin', 'p-2', '192.0.2.1', '', %[1]d);
		INSERT INTO instance_data (instance_id, project_id, expires_at, remind_at, last_reminded_at, next_expiry_check_at) VALUES ('instance-2', 'p-2', NULL, %[2]d, NULL, NULL);
	`, s.Clock.Now().Unix(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC).Unix())
}

func TestUpdateInstance(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"state": "SHUTOFF"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("UnknownElement", "Unknown resource element: state", "element-name", "state"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/instances/i-2",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"name": "hijacked"},
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "instance i-2 not found"),
	}.Check(t, s.Handler)

	s.Clock.StepBy(time.Hour)
	expected := maps.Clone(webInstance)
	expected["name"] = "website"
	expected["updated"] = "2025-01-01T01:00:00Z"
	expected["expires-at"] = "2025-03-01T00:00:00Z"
	expected["remind-at"] = "2025-02-01T00:00:00Z"
	assert.HTTPRequest{
		Method: "PUT",
		Path:   "/v1/instances/i-1",
		Header: memberHeaders,
		Body: assert.JSONObject{
			"name":       "website",
			"expires-at": "2025-03-01T00:00:00Z",
			"remind-at":  "2025-02-01T00:00:00Z",
		},
		ExpectStatus: http.StatusOK,
		ExpectBody:   expected,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.UpdateAction,
		ReasonCode: http.StatusOK,
		Target: cadf.Resource{
			TypeURI:   "altai/instances",
			ID:        "i-1",
			Name:      "website",
			ProjectID: "p-1",
		},
	})

	// a new reminder must still come before the stored expiry
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"remind-at": "2025-04-01T00:00:00Z"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element remind-at: must be before expires-at",
			"element-name", "remind-at", "element-value", "2025-04-01T00:00:00Z", "expected-type", "timestamp", "reason", "must be before expires-at"),
	}.Check(t, s.Handler)

	// removing the expiry date
	expected["expires-at"] = nil
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"expires-at": nil},
		ExpectStatus: http.StatusOK,
		ExpectBody:   expected,
	}.Check(t, s.Handler)
}

func TestDeleteAndRebootInstance(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances/i-1/reboot",
		Header:       memberHeaders,
		ExpectStatus: http.StatusAccepted,
		ExpectBody:   webInstance,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances/i-1/reboot",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"hard": true},
		ExpectStatus: http.StatusAccepted,
		ExpectBody:   webInstance,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/instances/i-1/reboot",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"hard": "yes"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element hard",
			"element-name", "hard", "element-value", "yes", "expected-type", "boolean"),
	}.Check(t, s.Handler)
	assert.DeepEqual(t, "reboot count", s.CD.RebootCounts["i-1"], 2)

	// an empty body without Content-Length (as sent with chunked encoding) is no body at all
	req := httptest.NewRequest(http.MethodPost, "/v1/instances/i-1/reboot", io.MultiReader())
	for key, value := range memberHeaders {
		req.Header.Set(key, value)
	}
	assert.DeepEqual(t, "Content-Length of chunked request", req.ContentLength, int64(-1))
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	assert.DeepEqual(t, "status of chunked reboot", rec.Code, http.StatusAccepted)
	assert.DeepEqual(t, "reboot count", s.CD.RebootCounts["i-1"], 3)
	s.Auditor.IgnoreEventsUntilNow()

	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/instances/i-2",
		Header:       memberHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "instance i-2 not found"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/instances/i-1",
		Header:       memberHeaders,
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.DeleteAction,
		ReasonCode: http.StatusNoContent,
		Target: cadf.Resource{
			TypeURI:   "altai/instances",
			ID:        "i-1",
			Name:      "web",
			ProjectID: "p-1",
		},
	})
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/instances",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("instances", 1, dbInstance),
	}.Check(t, s.Handler)
}

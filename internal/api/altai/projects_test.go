// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1_test

import (
	"net/http"
	"testing"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/test"
)

func projectJSON(id, name, description string, instanceCount int) assert.JSONObject {
	return assert.JSONObject{
		"id":              id,
		"name":            name,
		"description":     description,
		"enabled":         true,
		"instances-count": instanceCount,
		"href":            href + "/v1/projects/" + id,
	}
}

func TestRootEndpoint(t *testing.T) {
	s := test.NewSetup(t)

	resources := assert.JSONObject{}
	for _, name := range []string{
		"audit-log", "config", "fw-rule-sets", "images", "instance-types", "instances",
		"me", "networks", "nodes", "projects", "stats", "users",
	} {
		resources[name] = href + "/v1/" + name
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"version":   "v1",
			"href":      href + "/v1/",
			"resources": resources,
		},
	}.Check(t, s.Handler)
}

func TestListProjects(t *testing.T) {
	s := setupWithFixtures(t)
	alpha := projectJSON("p-1", "alpha", "first project", 1)
	beta := projectJSON("p-2", "beta", "", 1)

	// authentication is required
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects",
		ExpectStatus: http.StatusUnauthorized,
		ExpectBody:   errorBody("Unauthorized", "Unauthorized", "reason", unauthenticated),
	}.Check(t, s.Handler)

	// admins see all projects
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 2, alpha, beta),
	}.Check(t, s.Handler)

	// members only see their own project
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects",
		Header:       memberHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 1, alpha),
	}.Check(t, s.Handler)

	// filters, sorting and pagination
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?name:startswith=b",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 1, beta),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?sortby=name:desc&limit=1",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 2, beta),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?sortby=name&offset=1",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 2, beta),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?instances-count:ge=2",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   collectionOf("projects", 0),
	}.Check(t, s.Handler)

	// malformed requests
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?foo=bar",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("UnknownArgument", "Unknown request argument: foo", "argument-name", "foo"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects?limit=1&limit=2",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("InvalidRequest", "Invalid request: Duplicated argument: limit", "reason", "Duplicated argument: limit"),
	}.Check(t, s.Handler)
}

func TestGetProject(t *testing.T) {
	s := setupWithFixtures(t)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects/p-1",
		Header:       memberHeaders,
		ExpectStatus: http.StatusOK,
		ExpectBody:   projectJSON("p-1", "alpha", "first project", 1),
	}.Check(t, s.Handler)

	// projects of other users look like missing ones
	for _, path := range []string{"/v1/projects/p-2", "/v1/projects/p-3"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         path,
			Header:       memberHeaders,
			ExpectStatus: http.StatusNotFound,
			ExpectBody:   errorBody("NotFound", "project "+path[len("/v1/projects/"):]+" not found"),
		}.Check(t, s.Handler)
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/projects/p-3",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   errorBody("NotFound", "project p-3 not found"),
	}.Check(t, s.Handler)
}

func TestCreateUpdateDeleteProject(t *testing.T) {
	s := setupWithFixtures(t)

	// only admins may create projects
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/projects",
		Header:       memberHeaders,
		Body:         assert.JSONObject{"name": "gamma"},
		ExpectStatus: http.StatusForbidden,
		ExpectBody:   forbiddenForNonAdmins,
	}.Check(t, s.Handler)

	// request bodies are validated
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/projects",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"description": "no name"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("MissingElement", "Required element is missing: name", "element-name", "name"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/projects",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"name": "gamma", "enabled": false},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   errorBody("UnknownElement", "Unknown resource element: enabled", "element-name", "enabled"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/projects",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"name": 42},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: errorBody("InvalidElementValue", "Invalid value for element name",
			"element-name", "name", "element-value", 42, "expected-type", "string"),
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t /*, nothing */)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/projects",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"name": "gamma", "description": "third project"},
		ExpectStatus: http.StatusCreated,
		ExpectBody:   projectJSON("project-1", "gamma", "third project", 0),
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.CreateAction,
		ReasonCode: http.StatusCreated,
		Target: cadf.Resource{
			TypeURI:   "altai/projects",
			ID:        "project-1",
			Name:      "gamma",
			ProjectID: "project-1",
		},
	})

	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/projects/project-1",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"name": "gamma-ray"},
		ExpectStatus: http.StatusOK,
		ExpectBody:   projectJSON("project-1", "gamma-ray", "third project", 0),
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.UpdateAction,
		ReasonCode: http.StatusOK,
		Target: cadf.Resource{
			TypeURI:   "altai/projects",
			ID:        "project-1",
			Name:      "gamma-ray",
			ProjectID: "project-1",
		},
	})

	// an empty description clears the attribute, while leaving it out keeps it
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/projects/project-1",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"description": ""},
		ExpectStatus: http.StatusOK,
		ExpectBody:   projectJSON("project-1", "gamma-ray", "", 0),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/projects/p-1",
		Header:       test.AdminHeaders,
		Body:         assert.JSONObject{"name": "alpha"},
		ExpectStatus: http.StatusOK,
		ExpectBody:   projectJSON("p-1", "alpha", "first project", 1),
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()

	// projects with instances cannot be deleted
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/projects/p-1",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusConflict,
		ExpectBody:   errorBody("Conflict", "project p-1 still contains 1 instances"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/projects/project-1",
		Header:       test.AdminHeaders,
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, test.AuditEvent{
		Action:     cadf.DeleteAction,
		ReasonCode: http.StatusNoContent,
		Target: cadf.Resource{
			TypeURI:   "altai/projects",
			ID:        "project-1",
			Name:      "gamma-ray",
			ProjectID: "project-1",
		},
	})
	_, err := s.CD.GetProject(t.Context(), "project-1")
	assert.DeepEqual(t, "error from GetProject", err, altai.ErrNotFound)
}

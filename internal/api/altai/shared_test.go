// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altaiv1_test

import (
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/easypg"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/test"
)

func TestMain(m *testing.M) {
	easypg.WithTestDB(m, func() int { return m.Run() })
}

var (
	// some points in time before the start of the test clock
	createdAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	updatedAt = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	memberHeaders      = test.Headers("u-1", "p-1", "member")
	otherMemberHeaders = test.Headers("u-2", "p-2", "member")
)

const (
	testPublicKey   = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOaZzCAHG1rMUTAR0qQT5x5VD0elRmx8O4Xlj76oidHl test"
	href            = "https://altai.example.org"
	unauthenticated = "no credentials provided"
)

// setupWithFixtures prepares a cloud with two projects, each containing one
// instance.
func setupWithFixtures(t *testing.T, opts ...test.SetupOption) test.Setup {
	s := test.NewSetup(t, opts...)
	s.CD.AddProject(altai.Project{ID: "p-1", Name: "alpha", Description: "first project", Enabled: true})
	s.CD.AddProject(altai.Project{ID: "p-2", Name: "beta", Enabled: true})
	s.CD.AddUser(altai.User{ID: "u-1", Name: "alice", FullName: "Alice A.", Email: "alice@example.com", Enabled: true, ProjectIDs: []string{"p-1"}})
	s.CD.AddUser(altai.User{ID: "u-2", Name: "bob", Email: "bob@example.com", Enabled: true, ProjectIDs: []string{"p-2"}})
	s.CD.AddUser(altai.User{ID: "u-admin", Name: "admin", Email: "admin@example.com", Enabled: true, IsAdmin: true})
	s.CD.AddInstanceType(altai.InstanceType{ID: "it-1", Name: "small", CPUs: 1, RAMMB: 1024, RootSizeGB: 10})
	s.CD.AddInstanceType(altai.InstanceType{ID: "it-2", Name: "large", CPUs: 8, RAMMB: 16384, RootSizeGB: 80, EphemeralGB: 100})
	s.CD.AddImage(altai.Image{
		ID: "img-1", Name: "ubuntu", Status: "active", DiskFormat: "qcow2", ContainerFormat: "bare",
		Global: true, SizeBytes: 4096, CreatedAt: createdAt,
	})
	s.CD.AddImage(altai.Image{
		ID: "img-2", Name: "private", Status: "active", DiskFormat: "raw", ContainerFormat: "bare",
		OwnerProjectID: "p-2", CreatedAt: createdAt,
	})
	s.CD.AddInstance(altai.Instance{
		ID: "i-1", Name: "web", Status: "ACTIVE", ProjectID: "p-1", UserID: "u-1",
		InstanceTypeID: "it-1", ImageID: "img-1", IPv4: "10.0.0.5", CreatedAt: createdAt, UpdatedAt: updatedAt,
	})
	s.CD.AddInstance(altai.Instance{
		ID: "i-2", Name: "db", Status: "SHUTOFF", ProjectID: "p-2", UserID: "u-2",
		InstanceTypeID: "it-2", ImageID: "img-2", CreatedAt: createdAt, UpdatedAt: createdAt,
	})
	return s
}

func linkTo(collectionName, id, name string) assert.JSONObject {
	return assert.JSONObject{
		"id":   id,
		"name": name,
		"href": href + "/v1/" + collectionName + "/" + id,
	}
}

func collectionOf(name string, size int, items ...assert.JSONObject) assert.JSONObject {
	if items == nil {
		items = []assert.JSONObject{}
	}
	return assert.JSONObject{
		"collection": assert.JSONObject{"name": name, "size": size},
		name:         items,
	}
}

func errorBody(errorType, message string, extra ...any) assert.JSONObject {
	result := assert.JSONObject{"error-type": errorType, "message": message}
	for idx := 0; idx+1 < len(extra); idx += 2 {
		result[extra[idx].(string)] = extra[idx+1]
	}
	return result
}

var forbiddenForNonAdmins = errorBody("Forbidden", "Forbidden", "reason", "this operation is restricted to administrators")

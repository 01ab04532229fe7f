// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"context"
	"net/http"

	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/pluggable"
)

// UserIdentity describes the user that made an API request.
type UserIdentity struct {
	UserID      string
	UserName    string
	ProjectID   string
	ProjectName string
	// IsAdmin users can see and modify resources in all projects.
	IsAdmin bool
	// Info is used as the initiator of audit events.
	Info audittools.UserInfo
}

// CanAccessProject returns whether the user may see resources of the given
// project.
func (uid UserIdentity) CanAccessProject(projectID string) bool {
	return uid.IsAdmin || (projectID != "" && uid.ProjectID == projectID)
}

// AuthDriver represents an authentication backend.
type AuthDriver interface {
	pluggable.Plugin
	// Init is called before any other interface methods, and allows the plugin to
	// perform first-time initialization.
	Init(ctx context.Context) error

	// AuthenticateRequest reads credentials from the given incoming HTTP
	// request. If authentication fails, an *apierr.Error of type Unauthorized
	// shall be returned.
	AuthenticateRequest(r *http.Request) (*UserIdentity, error)
}

// AuthDriverRegistry is a pluggable.Registry for AuthDriver implementations.
var AuthDriverRegistry pluggable.Registry[AuthDriver]

// NewAuthDriver creates a new AuthDriver using one of the plugins registered
// with AuthDriverRegistry.
//
// The supplied config must be a JSON string like `{"type":"foobar","params":{"foo":"bar"}}`.
func NewAuthDriver(ctx context.Context, configJSON string) (AuthDriver, error) {
	return newDriver("auth driver", AuthDriverRegistry, configJSON, func(ad AuthDriver) error {
		return ad.Init(ctx)
	})
}

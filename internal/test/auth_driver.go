// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"net/http"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
)

// AuthDriver (driver ID "unittest") is an altai.AuthDriver for unit tests.
// It trusts the X-Test-User, X-Test-Project and X-Test-Role request headers.
// Requests without X-Test-User are rejected as unauthenticated.
type AuthDriver struct{}

func init() {
	altai.AuthDriverRegistry.Add(func() altai.AuthDriver { return &AuthDriver{} })
}

// PluginTypeID implements the altai.AuthDriver interface.
func (d *AuthDriver) PluginTypeID() string { return "unittest" }

// Init implements the altai.AuthDriver interface.
func (d *AuthDriver) Init(ctx context.Context) error {
	return nil
}

// AuthenticateRequest implements the altai.AuthDriver interface.
func (d *AuthDriver) AuthenticateRequest(r *http.Request) (*altai.UserIdentity, error) {
	userID := r.Header.Get("X-Test-User")
	if userID == "" {
		return nil, apierr.Unauthorized("no credentials provided")
	}
	projectID := r.Header.Get("X-Test-Project")
	role := r.Header.Get("X-Test-Role")
	if role == "" {
		role = "member"
	}
	if role != "member" && role != "admin" {
		return nil, apierr.Forbidden("token does not carry a usable role")
	}

	return &altai.UserIdentity{
		UserID:    userID,
		UserName:  userID,
		ProjectID: projectID,
		IsAdmin:   role == "admin",
		Info:      userInfo{UserID: userID, ProjectID: projectID},
	}, nil
}

// Headers returns the request headers that authenticate as the given user.
// An empty projectID yields an unscoped request.
func Headers(userID, projectID, role string) map[string]string {
	result := map[string]string{"X-Test-User": userID, "X-Test-Role": role}
	if projectID != "" {
		result["X-Test-Project"] = projectID
	}
	return result
}

// AdminHeaders authenticates as an admin user.
var AdminHeaders = Headers("u-admin", "", "admin")

// userInfo is an audittools.UserInfo for users of the unittest AuthDriver.
type userInfo struct {
	UserID    string
	ProjectID string
}

func (u userInfo) UserUUID() string                { return u.UserID }
func (u userInfo) UserName() string                { return u.UserID }
func (u userInfo) UserDomainName() string          { return "Default" }
func (u userInfo) ProjectScopeUUID() string        { return u.ProjectID }
func (u userInfo) ProjectScopeName() string        { return u.ProjectID }
func (u userInfo) ProjectScopeDomainName() string  { return "Default" }
func (u userInfo) DomainScopeUUID() string         { return "" }
func (u userInfo) DomainScopeName() string         { return "" }
func (u userInfo) ApplicationCredentialID() string { return "" }

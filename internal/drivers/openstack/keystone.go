// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package openstack contains:
//
//   - the AuthDriver "keystone": Incoming HTTP requests are authenticated by
//     reading a Keystone token from the X-Auth-Token request header.
//   - the CloudDriver "openstack": Altai projects, users, instances and so on
//     are backed by the respective OpenStack services.
package openstack

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	policy "github.com/databus23/goslo.policy"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/sapcc/go-bits/gophercloudext"
	"github.com/sapcc/go-bits/gopherpolicy"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/apierr"
)

type keystoneDriver struct {
	// configuration
	AdminProjectID string `json:"admin_project_id"`
	AdminRoleName  string `json:"admin_role"`
	MemberRoleName string `json:"member_role"`

	// state
	TokenValidator *gopherpolicy.TokenValidator `json:"-"`
}

func init() {
	altai.AuthDriverRegistry.Add(func() altai.AuthDriver { return &keystoneDriver{} })
}

// PluginTypeID implements the altai.AuthDriver interface.
func (d *keystoneDriver) PluginTypeID() string { return "keystone" }

// Init implements the altai.AuthDriver interface.
func (d *keystoneDriver) Init(ctx context.Context) error {
	if d.AdminRoleName == "" {
		d.AdminRoleName = "admin"
	}
	if d.MemberRoleName == "" {
		d.MemberRoleName = "member"
	}
	if d.AdminProjectID == "" {
		return errors.New("missing required value: params.admin_project_id")
	}

	provider, eo, err := gophercloudext.NewProviderClient(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot connect to OpenStack: %w", err)
	}
	identityV3, err := openstack.NewIdentityV3(provider, eo)
	if err != nil {
		return fmt.Errorf("cannot find Keystone v3 API: %w", err)
	}

	enforcer, err := policy.NewEnforcer(d.policyRules())
	if err != nil {
		return fmt.Errorf("cannot build policy enforcer: %w", err)
	}
	d.TokenValidator = &gopherpolicy.TokenValidator{
		IdentityV3: identityV3,
		Enforcer:   enforcer,
		Cacher:     gopherpolicy.InMemoryCacher(),
	}
	return nil
}

// policyRules returns the fixed set of rules that AuthenticateRequest checks.
// Admins are users with the admin role in the admin project. Everyone else
// needs the member role in their token scope.
func (d *keystoneDriver) policyRules() map[string]string {
	return map[string]string{
		"admin":  fmt.Sprintf("role:%s and project_id:%s", d.AdminRoleName, d.AdminProjectID),
		"member": fmt.Sprintf("role:%s or rule:admin", d.MemberRoleName),
	}
}

// AuthenticateRequest implements the altai.AuthDriver interface.
func (d *keystoneDriver) AuthenticateRequest(r *http.Request) (*altai.UserIdentity, error) {
	t := d.TokenValidator.CheckToken(r)
	if t.Err != nil {
		logg.Debug("token validation failed: %s", t.Err.Error())
		return nil, apierr.Unauthorized("no valid token provided")
	}
	if !t.Check("member") {
		return nil, apierr.Forbidden("token does not carry a usable role")
	}

	uid := &altai.UserIdentity{
		UserID:      t.UserUUID(),
		UserName:    t.UserName(),
		ProjectID:   t.ProjectScopeUUID(),
		ProjectName: t.ProjectScopeName(),
		IsAdmin:     t.Check("admin"),
		Info:        t,
	}
	return uid, nil
}

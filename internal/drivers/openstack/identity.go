// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"errors"
	"slices"

	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/roles"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/users"

	"github.com/sapcc/altai-api/internal/altai"
)

// Keys in the "extra" attributes of Keystone users.
const (
	extraKeyEmail    = "email"
	extraKeyFullName = "fullname"
)

////////////////////////////////////////////////////////////////////////////////
// projects

// ListProjects implements the altai.CloudDriver interface.
func (d *cloudDriver) ListProjects(ctx context.Context) ([]altai.Project, error) {
	page, err := projects.List(d.IdentityV3, projects.ListOpts{DomainID: d.DomainID}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := projects.ExtractProjects(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.Project, 0, len(list))
	for _, p := range list {
		if p.ID == d.AdminProjectID {
			continue
		}
		result = append(result, convertProject(p))
	}
	return result, nil
}

// GetProject implements the altai.CloudDriver interface.
func (d *cloudDriver) GetProject(ctx context.Context, id string) (altai.Project, error) {
	if id == d.AdminProjectID {
		return altai.Project{}, altai.ErrNotFound
	}
	p, err := projects.Get(ctx, d.IdentityV3, id).Extract()
	if err != nil {
		return altai.Project{}, translateError(err)
	}
	return convertProject(*p), nil
}

// CreateProject implements the altai.CloudDriver interface.
func (d *cloudDriver) CreateProject(ctx context.Context, opts altai.ProjectOpts) (altai.Project, error) {
	enabled := true
	p, err := projects.Create(ctx, d.IdentityV3, projects.CreateOpts{
		DomainID:    d.DomainID,
		Name:        opts.Name,
		Description: opts.Description.UnwrapOr(""),
		Enabled:     &enabled,
	}).Extract()
	if err != nil {
		return altai.Project{}, err
	}
	return convertProject(*p), nil
}

// UpdateProject implements the altai.CloudDriver interface.
func (d *cloudDriver) UpdateProject(ctx context.Context, id string, opts altai.ProjectOpts) (altai.Project, error) {
	updateOpts := projects.UpdateOpts{Name: opts.Name}
	if description, ok := opts.Description.Unpack(); ok {
		updateOpts.Description = &description
	}
	p, err := projects.Update(ctx, d.IdentityV3, id, updateOpts).Extract()
	if err != nil {
		return altai.Project{}, translateError(err)
	}
	return convertProject(*p), nil
}

// DeleteProject implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteProject(ctx context.Context, id string) error {
	return translateError(projects.Delete(ctx, d.IdentityV3, id).ExtractErr())
}

func convertProject(p projects.Project) altai.Project {
	return altai.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Enabled:     p.Enabled,
	}
}

////////////////////////////////////////////////////////////////////////////////
// users

// roleAssignments maps user IDs to the IDs of projects where they have the
// given role.
func (d *cloudDriver) roleAssignments(ctx context.Context, opts roles.ListAssignmentsOpts) (map[string][]string, error) {
	page, err := roles.ListAssignments(d.IdentityV3, opts).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := roles.ExtractRoleAssignments(page)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]string)
	for _, a := range list {
		if a.Scope.Project.ID == "" {
			continue
		}
		result[a.User.ID] = append(result[a.User.ID], a.Scope.Project.ID)
	}
	return result, nil
}

func (d *cloudDriver) convertUser(u users.User, memberships, admins map[string][]string) altai.User {
	result := altai.User{
		ID:      u.ID,
		Name:    u.Name,
		Enabled: u.Enabled,
		IsAdmin: slices.Contains(admins[u.ID], d.AdminProjectID),
	}
	result.Email, _ = u.Extra[extraKeyEmail].(string)
	result.FullName, _ = u.Extra[extraKeyFullName].(string)
	for _, projectID := range memberships[u.ID] {
		if projectID != d.AdminProjectID {
			result.ProjectIDs = append(result.ProjectIDs, projectID)
		}
	}
	slices.Sort(result.ProjectIDs)
	return result
}

// ListUsers implements the altai.CloudDriver interface.
func (d *cloudDriver) ListUsers(ctx context.Context) ([]altai.User, error) {
	page, err := users.List(d.IdentityV3, users.ListOpts{DomainID: d.DomainID}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := users.ExtractUsers(page)
	if err != nil {
		return nil, err
	}
	memberships, err := d.roleAssignments(ctx, roles.ListAssignmentsOpts{RoleID: d.MemberRoleID})
	if err != nil {
		return nil, err
	}
	admins, err := d.roleAssignments(ctx, roles.ListAssignmentsOpts{RoleID: d.AdminRoleID, ScopeProjectID: d.AdminProjectID})
	if err != nil {
		return nil, err
	}

	result := make([]altai.User, len(list))
	for idx, u := range list {
		result[idx] = d.convertUser(u, memberships, admins)
	}
	return result, nil
}

// GetUser implements the altai.CloudDriver interface.
func (d *cloudDriver) GetUser(ctx context.Context, id string) (altai.User, error) {
	u, err := users.Get(ctx, d.IdentityV3, id).Extract()
	if err != nil {
		return altai.User{}, translateError(err)
	}
	memberships, err := d.roleAssignments(ctx, roles.ListAssignmentsOpts{UserID: id, RoleID: d.MemberRoleID})
	if err != nil {
		return altai.User{}, err
	}
	admins, err := d.roleAssignments(ctx, roles.ListAssignmentsOpts{UserID: id, RoleID: d.AdminRoleID, ScopeProjectID: d.AdminProjectID})
	if err != nil {
		return altai.User{}, err
	}
	return d.convertUser(*u, memberships, admins), nil
}

// CreateUser implements the altai.CloudDriver interface.
func (d *cloudDriver) CreateUser(ctx context.Context, opts altai.UserOpts) (altai.User, error) {
	enabled := true
	if opts.Enabled != nil {
		enabled = *opts.Enabled
	}
	u, err := users.Create(ctx, d.IdentityV3, users.CreateOpts{
		Name:     opts.Name,
		DomainID: d.DomainID,
		Enabled:  &enabled,
		Password: opts.Password,
		Extra: map[string]any{
			extraKeyEmail:    opts.Email,
			extraKeyFullName: opts.FullName.UnwrapOr(""),
		},
	}).Extract()
	if err != nil {
		return altai.User{}, err
	}
	if opts.IsAdmin != nil && *opts.IsAdmin {
		err := d.setAdmin(ctx, u.ID, true)
		if err != nil {
			return altai.User{}, err
		}
	}
	return d.GetUser(ctx, u.ID)
}

// UpdateUser implements the altai.CloudDriver interface.
func (d *cloudDriver) UpdateUser(ctx context.Context, id string, opts altai.UserOpts) (altai.User, error) {
	updateOpts := users.UpdateOpts{
		Name:     opts.Name,
		Enabled:  opts.Enabled,
		Password: opts.Password,
	}
	extra := make(map[string]any)
	if opts.Email != "" {
		extra[extraKeyEmail] = opts.Email
	}
	if fullName, ok := opts.FullName.Unpack(); ok {
		extra[extraKeyFullName] = fullName
	}
	if len(extra) > 0 {
		updateOpts.Extra = extra
	}
	_, err := users.Update(ctx, d.IdentityV3, id, updateOpts).Extract()
	if err != nil {
		return altai.User{}, translateError(err)
	}
	if opts.IsAdmin != nil {
		err := d.setAdmin(ctx, id, *opts.IsAdmin)
		if err != nil {
			return altai.User{}, err
		}
	}
	return d.GetUser(ctx, id)
}

func (d *cloudDriver) setAdmin(ctx context.Context, userID string, isAdmin bool) error {
	if isAdmin {
		return roles.Assign(ctx, d.IdentityV3, d.AdminRoleID, roles.AssignOpts{
			UserID:    userID,
			ProjectID: d.AdminProjectID,
		}).ExtractErr()
	}
	err := roles.Unassign(ctx, d.IdentityV3, d.AdminRoleID, roles.UnassignOpts{
		UserID:    userID,
		ProjectID: d.AdminProjectID,
	}).ExtractErr()
	// revoking a role that was never granted is fine
	return ignoreNotFound(translateError(err))
}

// DeleteUser implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteUser(ctx context.Context, id string) error {
	return translateError(users.Delete(ctx, d.IdentityV3, id).ExtractErr())
}

func ignoreNotFound(err error) error {
	if errors.Is(err, altai.ErrNotFound) {
		return nil
	}
	return err
}

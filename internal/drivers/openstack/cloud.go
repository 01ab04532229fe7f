// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/hypervisors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/keypairs"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/roles"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/subnets"
	"github.com/sapcc/go-bits/gophercloudext"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/altai-api/internal/altai"
)

// The compute microversion that we need for user-scoped keypairs and for
// hypervisor IDs being UUIDs.
const computeMicroversion = "2.53"

type cloudDriver struct {
	// configuration
	DomainID       string `json:"domain_id"`
	AdminProjectID string `json:"admin_project_id"`
	AdminRoleName  string `json:"admin_role"`
	MemberRoleName string `json:"member_role"`

	// state
	Provider     *gophercloud.ProviderClient `json:"-"`
	EndpointOpts gophercloud.EndpointOpts    `json:"-"`
	IdentityV3   *gophercloud.ServiceClient  `json:"-"`
	ComputeV2    *gophercloud.ServiceClient  `json:"-"`
	ImageV2      *gophercloud.ServiceClient  `json:"-"`
	NetworkV2    *gophercloud.ServiceClient  `json:"-"`
	AdminRoleID  string                      `json:"-"`
	MemberRoleID string                      `json:"-"`

	// compute clients with a token scoped to a specific project, for creating
	// instances in that project
	scopedComputeMutex   sync.Mutex
	scopedComputeClients map[string]*gophercloud.ServiceClient
}

func init() {
	altai.CloudDriverRegistry.Add(func() altai.CloudDriver { return &cloudDriver{} })
}

// PluginTypeID implements the altai.CloudDriver interface.
func (d *cloudDriver) PluginTypeID() string { return "openstack" }

// Init implements the altai.CloudDriver interface.
func (d *cloudDriver) Init(ctx context.Context) (err error) {
	if d.DomainID == "" {
		d.DomainID = "default"
	}
	if d.AdminRoleName == "" {
		d.AdminRoleName = "admin"
	}
	if d.MemberRoleName == "" {
		d.MemberRoleName = "member"
	}
	if d.AdminProjectID == "" {
		return errors.New("missing required value: params.admin_project_id")
	}

	d.Provider, d.EndpointOpts, err = gophercloudext.NewProviderClient(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot connect to OpenStack: %w", err)
	}
	d.IdentityV3, err = openstack.NewIdentityV3(d.Provider, d.EndpointOpts)
	if err != nil {
		return fmt.Errorf("cannot find Keystone v3 API: %w", err)
	}
	d.ComputeV2, err = openstack.NewComputeV2(d.Provider, d.EndpointOpts)
	if err != nil {
		return fmt.Errorf("cannot find Nova v2 API: %w", err)
	}
	d.ComputeV2.Microversion = computeMicroversion
	d.ImageV2, err = openstack.NewImageV2(d.Provider, d.EndpointOpts)
	if err != nil {
		return fmt.Errorf("cannot find Glance v2 API: %w", err)
	}
	d.NetworkV2, err = openstack.NewNetworkV2(d.Provider, d.EndpointOpts)
	if err != nil {
		return fmt.Errorf("cannot find Neutron v2 API: %w", err)
	}

	d.AdminRoleID, err = getRoleIDByName(ctx, d.IdentityV3, d.AdminRoleName)
	if err != nil {
		return err
	}
	d.MemberRoleID, err = getRoleIDByName(ctx, d.IdentityV3, d.MemberRoleName)
	if err != nil {
		return err
	}
	d.scopedComputeClients = make(map[string]*gophercloud.ServiceClient)
	return nil
}

func getRoleIDByName(ctx context.Context, identityV3 *gophercloud.ServiceClient, name string) (string, error) {
	page, err := roles.List(identityV3, roles.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot find Keystone role %q: %w", name, err)
	}
	list, err := roles.ExtractRoles(page)
	if err != nil {
		return "", fmt.Errorf("cannot find Keystone role %q: %w", name, err)
	}
	if len(list) == 0 {
		return "", fmt.Errorf("cannot find Keystone role %q: no such role", name)
	}
	return list[0].ID, nil
}

// computeClientForProject returns a compute client whose token is scoped to
// the given project. Nova creates servers in the project of the token.
func (d *cloudDriver) computeClientForProject(ctx context.Context, projectID string) (*gophercloud.ServiceClient, error) {
	d.scopedComputeMutex.Lock()
	defer d.scopedComputeMutex.Unlock()
	if client, ok := d.scopedComputeClients[projectID]; ok {
		return client, nil
	}

	provider, eo, err := gophercloudext.NewProviderClient(ctx, &gophercloudext.ClientOpts{
		CustomizeAuthOptions: func(ao *gophercloud.AuthOptions) {
			ao.Scope = &gophercloud.AuthScope{ProjectID: projectID}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot obtain token for project %s: %w", projectID, err)
	}
	client, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, err
	}
	client.Microversion = computeMicroversion
	logg.Debug("initialized compute client for project %s", projectID)
	d.scopedComputeClients[projectID] = client
	return client, nil
}

// translateError maps 404 responses from OpenStack to altai.ErrNotFound.
func translateError(err error) error {
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return altai.ErrNotFound
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////
// compute

// ListInstances implements the altai.CloudDriver interface.
func (d *cloudDriver) ListInstances(ctx context.Context, projectID string) ([]altai.Instance, error) {
	opts := servers.ListOpts{AllTenants: true, TenantID: projectID}
	page, err := servers.List(d.ComputeV2, opts).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := servers.ExtractServers(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.Instance, len(list))
	for idx, s := range list {
		result[idx] = convertServer(s)
	}
	return result, nil
}

// GetInstance implements the altai.CloudDriver interface.
func (d *cloudDriver) GetInstance(ctx context.Context, id string) (altai.Instance, error) {
	s, err := servers.Get(ctx, d.ComputeV2, id).Extract()
	if err != nil {
		return altai.Instance{}, translateError(err)
	}
	return convertServer(*s), nil
}

// CreateInstance implements the altai.CloudDriver interface.
func (d *cloudDriver) CreateInstance(ctx context.Context, opts altai.InstanceOpts) (altai.Instance, error) {
	client, err := d.computeClientForProject(ctx, opts.ProjectID)
	if err != nil {
		return altai.Instance{}, err
	}
	createOpts := servers.CreateOpts{
		Name:           opts.Name,
		ImageRef:       opts.ImageID,
		FlavorRef:      opts.InstanceTypeID,
		SecurityGroups: opts.FirewallRules,
	}
	if opts.NetworkID != "" {
		createOpts.Networks = []servers.Network{{UUID: opts.NetworkID}}
	}
	var builder servers.CreateOptsBuilder = createOpts
	if opts.KeyName != "" {
		builder = keypairs.CreateOptsExt{CreateOptsBuilder: createOpts, KeyName: opts.KeyName}
	}
	s, err := servers.Create(ctx, client, builder, nil).Extract()
	if err != nil {
		return altai.Instance{}, err
	}
	// the create response only contains the ID, so fetch the full record
	return d.GetInstance(ctx, s.ID)
}

// RenameInstance implements the altai.CloudDriver interface.
func (d *cloudDriver) RenameInstance(ctx context.Context, id, name string) (altai.Instance, error) {
	s, err := servers.Update(ctx, d.ComputeV2, id, servers.UpdateOpts{Name: name}).Extract()
	if err != nil {
		return altai.Instance{}, translateError(err)
	}
	return convertServer(*s), nil
}

// RebootInstance implements the altai.CloudDriver interface.
func (d *cloudDriver) RebootInstance(ctx context.Context, id string, hard bool) error {
	method := servers.SoftReboot
	if hard {
		method = servers.HardReboot
	}
	err := servers.Reboot(ctx, d.ComputeV2, id, servers.RebootOpts{Type: method}).ExtractErr()
	return translateError(err)
}

// DeleteInstance implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteInstance(ctx context.Context, id string) error {
	return translateError(servers.Delete(ctx, d.ComputeV2, id).ExtractErr())
}

func convertServer(s servers.Server) altai.Instance {
	inst := altai.Instance{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		ProjectID: s.TenantID,
		UserID:    s.UserID,
		CreatedAt: s.Created,
		UpdatedAt: s.Updated,
	}
	if id, ok := s.Flavor["id"].(string); ok {
		inst.InstanceTypeID = id
	}
	if id, ok := s.Image["id"].(string); ok {
		inst.ImageID = id
	}
	// pick the first IPv4 address from any network
	for _, addrs := range s.Addresses {
		list, _ := addrs.([]any)
		for _, entry := range list {
			addr, _ := entry.(map[string]any)
			if version, _ := addr["version"].(float64); version == 4 && inst.IPv4 == "" {
				inst.IPv4, _ = addr["addr"].(string)
			}
		}
	}
	return inst
}

// ListInstanceTypes implements the altai.CloudDriver interface.
func (d *cloudDriver) ListInstanceTypes(ctx context.Context) ([]altai.InstanceType, error) {
	page, err := flavors.ListDetail(d.ComputeV2, flavors.ListOpts{AccessType: flavors.AllAccess}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := flavors.ExtractFlavors(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.InstanceType, len(list))
	for idx, f := range list {
		result[idx] = convertFlavor(f)
	}
	return result, nil
}

// GetInstanceType implements the altai.CloudDriver interface.
func (d *cloudDriver) GetInstanceType(ctx context.Context, id string) (altai.InstanceType, error) {
	f, err := flavors.Get(ctx, d.ComputeV2, id).Extract()
	if err != nil {
		return altai.InstanceType{}, translateError(err)
	}
	return convertFlavor(*f), nil
}

// CreateInstanceType implements the altai.CloudDriver interface.
func (d *cloudDriver) CreateInstanceType(ctx context.Context, t altai.InstanceType) (altai.InstanceType, error) {
	isPublic := true
	f, err := flavors.Create(ctx, d.ComputeV2, flavors.CreateOpts{
		Name:      t.Name,
		RAM:       t.RAMMB,
		VCPUs:     t.CPUs,
		Disk:      &t.RootSizeGB,
		Ephemeral: &t.EphemeralGB,
		IsPublic:  &isPublic,
	}).Extract()
	if err != nil {
		return altai.InstanceType{}, err
	}
	return convertFlavor(*f), nil
}

// DeleteInstanceType implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteInstanceType(ctx context.Context, id string) error {
	return translateError(flavors.Delete(ctx, d.ComputeV2, id).ExtractErr())
}

func convertFlavor(f flavors.Flavor) altai.InstanceType {
	return altai.InstanceType{
		ID:          f.ID,
		Name:        f.Name,
		CPUs:        f.VCPUs,
		RAMMB:       f.RAM,
		RootSizeGB:  f.Disk,
		EphemeralGB: f.Ephemeral,
	}
}

// ListNodes implements the altai.CloudDriver interface.
func (d *cloudDriver) ListNodes(ctx context.Context) ([]altai.Node, error) {
	page, err := hypervisors.List(d.ComputeV2, hypervisors.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := hypervisors.ExtractHypervisors(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.Node, len(list))
	for idx, h := range list {
		result[idx] = altai.Node{
			Name:         h.HypervisorHostname,
			HostIP:       h.HostIP,
			CPUs:         h.VCPUs,
			CPUsUsed:     h.VCPUsUsed,
			MemoryMB:     h.MemoryMB,
			MemoryMBUsed: h.MemoryMBUsed,
			DiskGB:       h.LocalGB,
			DiskGBUsed:   h.LocalGBUsed,
			Instances:    h.RunningVMs,
		}
	}
	return result, nil
}

// ListKeyPairs implements the altai.CloudDriver interface.
func (d *cloudDriver) ListKeyPairs(ctx context.Context, userID string) ([]altai.KeyPair, error) {
	page, err := keypairs.List(d.ComputeV2, keypairs.ListOpts{UserID: userID}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := keypairs.ExtractKeyPairs(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.KeyPair, len(list))
	for idx, kp := range list {
		result[idx] = convertKeyPair(kp, userID)
	}
	return result, nil
}

// GetKeyPair implements the altai.CloudDriver interface.
func (d *cloudDriver) GetKeyPair(ctx context.Context, userID, name string) (altai.KeyPair, error) {
	kp, err := keypairs.Get(ctx, d.ComputeV2, name, keypairs.GetOpts{UserID: userID}).Extract()
	if err != nil {
		return altai.KeyPair{}, translateError(err)
	}
	return convertKeyPair(*kp, userID), nil
}

// CreateKeyPair implements the altai.CloudDriver interface.
func (d *cloudDriver) CreateKeyPair(ctx context.Context, userID, name, publicKey string) (altai.KeyPair, error) {
	kp, err := keypairs.Create(ctx, d.ComputeV2, keypairs.CreateOpts{
		Name:      name,
		PublicKey: publicKey,
		UserID:    userID,
	}).Extract()
	if err != nil {
		return altai.KeyPair{}, err
	}
	return convertKeyPair(*kp, userID), nil
}

// DeleteKeyPair implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteKeyPair(ctx context.Context, userID, name string) error {
	err := keypairs.Delete(ctx, d.ComputeV2, name, keypairs.DeleteOpts{UserID: userID}).ExtractErr()
	return translateError(err)
}

func convertKeyPair(kp keypairs.KeyPair, userID string) altai.KeyPair {
	return altai.KeyPair{
		Name:        kp.Name,
		UserID:      userID,
		Fingerprint: kp.Fingerprint,
		PublicKey:   kp.PublicKey,
	}
}

////////////////////////////////////////////////////////////////////////////////
// image

// ListImages implements the altai.CloudDriver interface.
func (d *cloudDriver) ListImages(ctx context.Context) ([]altai.Image, error) {
	page, err := images.List(d.ImageV2, images.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := images.ExtractImages(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.Image, len(list))
	for idx, img := range list {
		result[idx] = convertImage(img)
	}
	return result, nil
}

// GetImage implements the altai.CloudDriver interface.
func (d *cloudDriver) GetImage(ctx context.Context, id string) (altai.Image, error) {
	img, err := images.Get(ctx, d.ImageV2, id).Extract()
	if err != nil {
		return altai.Image{}, translateError(err)
	}
	return convertImage(*img), nil
}

// UpdateImage implements the altai.CloudDriver interface.
func (d *cloudDriver) UpdateImage(ctx context.Context, id string, opts altai.ImageOpts) (altai.Image, error) {
	var patches images.UpdateOpts
	if opts.Name != nil {
		patches = append(patches, images.ReplaceImageName{NewName: *opts.Name})
	}
	if opts.Global != nil {
		visibility := images.ImageVisibilityPrivate
		if *opts.Global {
			visibility = images.ImageVisibilityPublic
		}
		patches = append(patches, images.UpdateVisibility{Visibility: visibility})
	}
	if len(patches) == 0 {
		return d.GetImage(ctx, id)
	}
	img, err := images.Update(ctx, d.ImageV2, id, patches).Extract()
	if err != nil {
		return altai.Image{}, translateError(err)
	}
	return convertImage(*img), nil
}

// DeleteImage implements the altai.CloudDriver interface.
func (d *cloudDriver) DeleteImage(ctx context.Context, id string) error {
	return translateError(images.Delete(ctx, d.ImageV2, id).ExtractErr())
}

func convertImage(img images.Image) altai.Image {
	return altai.Image{
		ID:              img.ID,
		Name:            img.Name,
		Status:          string(img.Status),
		DiskFormat:      img.DiskFormat,
		ContainerFormat: img.ContainerFormat,
		OwnerProjectID:  img.Owner,
		Global:          img.Visibility == images.ImageVisibilityPublic,
		SizeBytes:       img.SizeBytes,
		CreatedAt:       img.CreatedAt,
	}
}

////////////////////////////////////////////////////////////////////////////////
// network

// ListNetworks implements the altai.CloudDriver interface.
func (d *cloudDriver) ListNetworks(ctx context.Context) ([]altai.Network, error) {
	page, err := networks.List(d.NetworkV2, networks.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := networks.ExtractNetworks(page)
	if err != nil {
		return nil, err
	}

	// resolve CIDRs in one go instead of one subnet GET per network
	page, err = subnets.List(d.NetworkV2, subnets.ListOpts{IPVersion: 4}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	subnetList, err := subnets.ExtractSubnets(page)
	if err != nil {
		return nil, err
	}
	cidrs := make(map[string]string, len(subnetList))
	for _, s := range subnetList {
		cidrs[s.ID] = s.CIDR
	}

	result := make([]altai.Network, len(list))
	for idx, n := range list {
		result[idx] = convertNetwork(n, cidrs)
	}
	return result, nil
}

// GetNetwork implements the altai.CloudDriver interface.
func (d *cloudDriver) GetNetwork(ctx context.Context, id string) (altai.Network, error) {
	n, err := networks.Get(ctx, d.NetworkV2, id).Extract()
	if err != nil {
		return altai.Network{}, translateError(err)
	}
	cidrs := make(map[string]string)
	for _, subnetID := range n.Subnets {
		s, err := subnets.Get(ctx, d.NetworkV2, subnetID).Extract()
		if err != nil {
			return altai.Network{}, err
		}
		if s.IPVersion == 4 {
			cidrs[s.ID] = s.CIDR
		}
	}
	return convertNetwork(*n, cidrs), nil
}

func convertNetwork(n networks.Network, cidrs map[string]string) altai.Network {
	result := altai.Network{
		ID:        n.ID,
		Name:      n.Name,
		ProjectID: n.ProjectID,
		Shared:    n.Shared,
	}
	for _, subnetID := range n.Subnets {
		if cidr, ok := cidrs[subnetID]; ok {
			result.CIDR = cidr
			break
		}
	}
	return result
}

// ListFirewallRuleSets implements the altai.CloudDriver interface.
func (d *cloudDriver) ListFirewallRuleSets(ctx context.Context) ([]altai.FirewallRuleSet, error) {
	page, err := groups.List(d.NetworkV2, groups.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	list, err := groups.ExtractGroups(page)
	if err != nil {
		return nil, err
	}
	result := make([]altai.FirewallRuleSet, len(list))
	for idx, g := range list {
		result[idx] = convertSecGroup(g)
	}
	return result, nil
}

// GetFirewallRuleSet implements the altai.CloudDriver interface.
func (d *cloudDriver) GetFirewallRuleSet(ctx context.Context, id string) (altai.FirewallRuleSet, error) {
	g, err := groups.Get(ctx, d.NetworkV2, id).Extract()
	if err != nil {
		return altai.FirewallRuleSet{}, translateError(err)
	}
	return convertSecGroup(*g), nil
}

func convertSecGroup(g groups.SecGroup) altai.FirewallRuleSet {
	result := altai.FirewallRuleSet{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		ProjectID:   g.ProjectID,
	}
	for _, r := range g.Rules {
		if r.Direction != "ingress" {
			continue
		}
		result.Rules = append(result.Rules, altai.FirewallRule{
			ID:       r.ID,
			Protocol: r.Protocol,
			PortMin:  r.PortRangeMin,
			PortMax:  r.PortRangeMax,
			Source:   r.RemoteIPPrefix,
		})
	}
	return result
}

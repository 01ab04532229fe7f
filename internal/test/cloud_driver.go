// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sapcc/altai-api/internal/altai"
)

// CloudDriver (driver ID "unittest") is an altai.CloudDriver that keeps all
// objects in memory. Tests can seed it through the Add* methods. New objects
// get sequential IDs like "instance-1" for reproducible responses.
type CloudDriver struct {
	// TimeNow is used for creation timestamps of new instances.
	TimeNow func() time.Time

	mutex         sync.Mutex
	nextID        map[string]int
	projects      map[string]altai.Project
	users         map[string]altai.User
	passwords     map[string]string
	instances     map[string]altai.Instance
	instanceTypes map[string]altai.InstanceType
	images        map[string]altai.Image
	networks      map[string]altai.Network
	ruleSets      map[string]altai.FirewallRuleSet
	nodes         []altai.Node
	keyPairs      map[string]altai.KeyPair // key = userID + "/" + name

	// RebootCounts counts RebootInstance calls per instance ID.
	RebootCounts map[string]int

	failures map[string]error // key = method + " " + ID
}

func init() {
	altai.CloudDriverRegistry.Add(func() altai.CloudDriver { return &CloudDriver{} })
}

// PluginTypeID implements the altai.CloudDriver interface.
func (d *CloudDriver) PluginTypeID() string { return "unittest" }

// Init implements the altai.CloudDriver interface.
func (d *CloudDriver) Init(ctx context.Context) error {
	d.TimeNow = time.Now
	d.nextID = make(map[string]int)
	d.projects = make(map[string]altai.Project)
	d.users = make(map[string]altai.User)
	d.passwords = make(map[string]string)
	d.instances = make(map[string]altai.Instance)
	d.instanceTypes = make(map[string]altai.InstanceType)
	d.images = make(map[string]altai.Image)
	d.networks = make(map[string]altai.Network)
	d.ruleSets = make(map[string]altai.FirewallRuleSet)
	d.keyPairs = make(map[string]altai.KeyPair)
	d.RebootCounts = make(map[string]int)
	d.failures = make(map[string]error)
	return nil
}

// FailOn makes all calls of the given method on the given object ID fail with
// the given error. Use err == nil to make calls succeed again. Supported
// methods are UpdateUser and DeleteInstance.
func (d *CloudDriver) FailOn(method, id string, err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err == nil {
		delete(d.failures, method+" "+id)
	} else {
		d.failures[method+" "+id] = err
	}
}

func (d *CloudDriver) generateID(kind string) string {
	d.nextID[kind]++
	return fmt.Sprintf("%s-%d", kind, d.nextID[kind])
}

func sortedValues[V any](m map[string]V) []V {
	keys := slices.Sorted(maps.Keys(m))
	result := make([]V, len(keys))
	for idx, key := range keys {
		result[idx] = m[key]
	}
	return result
}

func getOrNotFound[V any](m map[string]V, id string) (V, error) {
	value, ok := m[id]
	if !ok {
		return value, altai.ErrNotFound
	}
	return value, nil
}

////////////////////////////////////////////////////////////////////////////////
// seeding

// AddProject adds a project without going through CreateProject.
func (d *CloudDriver) AddProject(p altai.Project) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.projects[p.ID] = p
}

// AddUser adds a user without going through CreateUser.
func (d *CloudDriver) AddUser(u altai.User) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.users[u.ID] = u
}

// AddInstance adds an instance without going through CreateInstance.
func (d *CloudDriver) AddInstance(i altai.Instance) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.instances[i.ID] = i
}

// AddInstanceType adds an instance type without going through CreateInstanceType.
func (d *CloudDriver) AddInstanceType(t altai.InstanceType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.instanceTypes[t.ID] = t
}

// AddImage adds an image.
func (d *CloudDriver) AddImage(img altai.Image) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.images[img.ID] = img
}

// AddNetwork adds a network.
func (d *CloudDriver) AddNetwork(n altai.Network) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.networks[n.ID] = n
}

// AddFirewallRuleSet adds a firewall rule set.
func (d *CloudDriver) AddFirewallRuleSet(rs altai.FirewallRuleSet) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.ruleSets[rs.ID] = rs
}

// AddNode adds a node.
func (d *CloudDriver) AddNode(n altai.Node) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.nodes = append(d.nodes, n)
}

// PasswordOf returns the password that was last set for the given user.
func (d *CloudDriver) PasswordOf(userID string) string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.passwords[userID]
}

////////////////////////////////////////////////////////////////////////////////
// projects

// ListProjects implements the altai.CloudDriver interface.
func (d *CloudDriver) ListProjects(ctx context.Context) ([]altai.Project, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.projects), nil
}

// GetProject implements the altai.CloudDriver interface.
func (d *CloudDriver) GetProject(ctx context.Context, id string) (altai.Project, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.projects, id)
}

// CreateProject implements the altai.CloudDriver interface.
func (d *CloudDriver) CreateProject(ctx context.Context, opts altai.ProjectOpts) (altai.Project, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	p := altai.Project{
		ID:          d.generateID("project"),
		Name:        opts.Name,
		Description: opts.Description.UnwrapOr(""),
		Enabled:     true,
	}
	d.projects[p.ID] = p
	return p, nil
}

// UpdateProject implements the altai.CloudDriver interface.
func (d *CloudDriver) UpdateProject(ctx context.Context, id string, opts altai.ProjectOpts) (altai.Project, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	p, err := getOrNotFound(d.projects, id)
	if err != nil {
		return p, err
	}
	if opts.Name != "" {
		p.Name = opts.Name
	}
	if description, ok := opts.Description.Unpack(); ok {
		p.Description = description
	}
	d.projects[id] = p
	return p, nil
}

// DeleteProject implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteProject(ctx context.Context, id string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.projects[id]; !ok {
		return altai.ErrNotFound
	}
	delete(d.projects, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// users

// ListUsers implements the altai.CloudDriver interface.
func (d *CloudDriver) ListUsers(ctx context.Context) ([]altai.User, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.users), nil
}

// GetUser implements the altai.CloudDriver interface.
func (d *CloudDriver) GetUser(ctx context.Context, id string) (altai.User, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.users, id)
}

// CreateUser implements the altai.CloudDriver interface.
func (d *CloudDriver) CreateUser(ctx context.Context, opts altai.UserOpts) (altai.User, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, u := range d.users {
		if u.Name == opts.Name {
			return altai.User{}, fmt.Errorf("user name %q is already in use", opts.Name)
		}
	}
	u := altai.User{
		ID:       d.generateID("user"),
		Name:     opts.Name,
		FullName: opts.FullName.UnwrapOr(""),
		Email:    opts.Email,
		Enabled:  opts.Enabled == nil || *opts.Enabled,
		IsAdmin:  opts.IsAdmin != nil && *opts.IsAdmin,
	}
	d.users[u.ID] = u
	d.passwords[u.ID] = opts.Password
	return u, nil
}

// UpdateUser implements the altai.CloudDriver interface.
func (d *CloudDriver) UpdateUser(ctx context.Context, id string, opts altai.UserOpts) (altai.User, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failures["UpdateUser "+id]; err != nil {
		return altai.User{}, err
	}
	u, err := getOrNotFound(d.users, id)
	if err != nil {
		return u, err
	}
	if opts.Name != "" {
		u.Name = opts.Name
	}
	if fullName, ok := opts.FullName.Unpack(); ok {
		u.FullName = fullName
	}
	if opts.Email != "" {
		u.Email = opts.Email
	}
	if opts.Password != "" {
		d.passwords[id] = opts.Password
	}
	if opts.Enabled != nil {
		u.Enabled = *opts.Enabled
	}
	if opts.IsAdmin != nil {
		u.IsAdmin = *opts.IsAdmin
	}
	d.users[id] = u
	return u, nil
}

// DeleteUser implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteUser(ctx context.Context, id string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.users[id]; !ok {
		return altai.ErrNotFound
	}
	delete(d.users, id)
	delete(d.passwords, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// instances

// ListInstances implements the altai.CloudDriver interface.
func (d *CloudDriver) ListInstances(ctx context.Context, projectID string) ([]altai.Instance, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var result []altai.Instance
	for _, inst := range sortedValues(d.instances) {
		if projectID == "" || inst.ProjectID == projectID {
			result = append(result, inst)
		}
	}
	return result, nil
}

// GetInstance implements the altai.CloudDriver interface.
func (d *CloudDriver) GetInstance(ctx context.Context, id string) (altai.Instance, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.instances, id)
}

// CreateInstance implements the altai.CloudDriver interface.
func (d *CloudDriver) CreateInstance(ctx context.Context, opts altai.InstanceOpts) (altai.Instance, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.images[opts.ImageID]; !ok {
		return altai.Instance{}, fmt.Errorf("image %s not found", opts.ImageID)
	}
	if _, ok := d.instanceTypes[opts.InstanceTypeID]; !ok {
		return altai.Instance{}, fmt.Errorf("flavor %s not found", opts.InstanceTypeID)
	}
	now := d.TimeNow().UTC()
	inst := altai.Instance{
		ID:             d.generateID("instance"),
		Name:           opts.Name,
		Status:         "BUILD",
		ProjectID:      opts.ProjectID,
		InstanceTypeID: opts.InstanceTypeID,
		ImageID:        opts.ImageID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	d.instances[inst.ID] = inst
	return inst, nil
}

// RenameInstance implements the altai.CloudDriver interface.
func (d *CloudDriver) RenameInstance(ctx context.Context, id, name string) (altai.Instance, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	inst, err := getOrNotFound(d.instances, id)
	if err != nil {
		return inst, err
	}
	inst.Name = name
	inst.UpdatedAt = d.TimeNow().UTC()
	d.instances[id] = inst
	return inst, nil
}

// RebootInstance implements the altai.CloudDriver interface.
func (d *CloudDriver) RebootInstance(ctx context.Context, id string, hard bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.instances[id]; !ok {
		return altai.ErrNotFound
	}
	d.RebootCounts[id]++
	return nil
}

// DeleteInstance implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteInstance(ctx context.Context, id string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.failures["DeleteInstance "+id]; err != nil {
		return err
	}
	if _, ok := d.instances[id]; !ok {
		return altai.ErrNotFound
	}
	delete(d.instances, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// instance types

// ListInstanceTypes implements the altai.CloudDriver interface.
func (d *CloudDriver) ListInstanceTypes(ctx context.Context) ([]altai.InstanceType, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.instanceTypes), nil
}

// GetInstanceType implements the altai.CloudDriver interface.
func (d *CloudDriver) GetInstanceType(ctx context.Context, id string) (altai.InstanceType, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.instanceTypes, id)
}

// CreateInstanceType implements the altai.CloudDriver interface.
func (d *CloudDriver) CreateInstanceType(ctx context.Context, t altai.InstanceType) (altai.InstanceType, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	t.ID = d.generateID("instance-type")
	d.instanceTypes[t.ID] = t
	return t, nil
}

// DeleteInstanceType implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteInstanceType(ctx context.Context, id string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.instanceTypes[id]; !ok {
		return altai.ErrNotFound
	}
	delete(d.instanceTypes, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// images

// ListImages implements the altai.CloudDriver interface.
func (d *CloudDriver) ListImages(ctx context.Context) ([]altai.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.images), nil
}

// GetImage implements the altai.CloudDriver interface.
func (d *CloudDriver) GetImage(ctx context.Context, id string) (altai.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.images, id)
}

// UpdateImage implements the altai.CloudDriver interface.
func (d *CloudDriver) UpdateImage(ctx context.Context, id string, opts altai.ImageOpts) (altai.Image, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	img, err := getOrNotFound(d.images, id)
	if err != nil {
		return img, err
	}
	if opts.Name != nil {
		img.Name = *opts.Name
	}
	if opts.Global != nil {
		img.Global = *opts.Global
	}
	d.images[id] = img
	return img, nil
}

// DeleteImage implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteImage(ctx context.Context, id string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.images[id]; !ok {
		return altai.ErrNotFound
	}
	delete(d.images, id)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// networks, firewall rule sets, nodes

// ListNetworks implements the altai.CloudDriver interface.
func (d *CloudDriver) ListNetworks(ctx context.Context) ([]altai.Network, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.networks), nil
}

// GetNetwork implements the altai.CloudDriver interface.
func (d *CloudDriver) GetNetwork(ctx context.Context, id string) (altai.Network, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.networks, id)
}

// ListFirewallRuleSets implements the altai.CloudDriver interface.
func (d *CloudDriver) ListFirewallRuleSets(ctx context.Context) ([]altai.FirewallRuleSet, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sortedValues(d.ruleSets), nil
}

// GetFirewallRuleSet implements the altai.CloudDriver interface.
func (d *CloudDriver) GetFirewallRuleSet(ctx context.Context, id string) (altai.FirewallRuleSet, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.ruleSets, id)
}

// ListNodes implements the altai.CloudDriver interface.
func (d *CloudDriver) ListNodes(ctx context.Context) ([]altai.Node, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return slices.Clone(d.nodes), nil
}

////////////////////////////////////////////////////////////////////////////////
// key pairs

// ListKeyPairs implements the altai.CloudDriver interface.
func (d *CloudDriver) ListKeyPairs(ctx context.Context, userID string) ([]altai.KeyPair, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var result []altai.KeyPair
	for _, kp := range sortedValues(d.keyPairs) {
		if kp.UserID == userID {
			result = append(result, kp)
		}
	}
	return result, nil
}

// GetKeyPair implements the altai.CloudDriver interface.
func (d *CloudDriver) GetKeyPair(ctx context.Context, userID, name string) (altai.KeyPair, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return getOrNotFound(d.keyPairs, userID+"/"+name)
}

// CreateKeyPair implements the altai.CloudDriver interface.
func (d *CloudDriver) CreateKeyPair(ctx context.Context, userID, name, publicKey string) (altai.KeyPair, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	key := userID + "/" + name
	if _, exists := d.keyPairs[key]; exists {
		return altai.KeyPair{}, fmt.Errorf("key pair %q already exists", name)
	}
	kp := altai.KeyPair{
		Name:        name,
		UserID:      userID,
		Fingerprint: fmt.Sprintf("fp:%s:%d", name, len(publicKey)),
		PublicKey:   publicKey,
	}
	d.keyPairs[key] = kp
	return kp, nil
}

// DeleteKeyPair implements the altai.CloudDriver interface.
func (d *CloudDriver) DeleteKeyPair(ctx context.Context, userID, name string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	key := userID + "/" + name
	if _, ok := d.keyPairs[key]; !ok {
		return altai.ErrNotFound
	}
	delete(d.keyPairs, key)
	return nil
}

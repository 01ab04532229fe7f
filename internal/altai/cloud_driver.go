// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"context"
	"errors"
	"time"

	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/pluggable"
)

// ErrNotFound is returned by CloudDriver methods when the requested object
// does not exist.
var ErrNotFound = errors.New("not found")

// Project is a tenant in the cloud.
type Project struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
}

// ProjectOpts contains the attributes of a project that can be set by the API.
// On update, an empty Name or a None Description leaves the attribute unchanged.
type ProjectOpts struct {
	Name        string
	Description Option[string]
}

// User is a user account in the cloud.
type User struct {
	ID       string
	Name     string
	FullName string
	Email    string
	Enabled  bool
	IsAdmin  bool
	// ProjectIDs are the projects where this user is a member.
	ProjectIDs []string
}

// UserOpts contains the attributes of a user that can be set by the API.
// Empty strings and None or nil values leave the respective attribute
// unchanged on update.
type UserOpts struct {
	Name     string
	FullName Option[string]
	Email    string
	Password string
	Enabled  *bool
	IsAdmin  *bool
}

// Instance is a virtual machine.
type Instance struct {
	ID             string
	Name           string
	Status         string
	ProjectID      string
	UserID         string
	InstanceTypeID string
	ImageID        string
	Node           string
	IPv4           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InstanceOpts contains the attributes for a new instance.
type InstanceOpts struct {
	Name           string
	ProjectID      string
	InstanceTypeID string
	ImageID        string
	NetworkID      string
	KeyName        string
	FirewallRules  []string
}

// InstanceType is a flavor of virtual machines.
type InstanceType struct {
	ID          string
	Name        string
	CPUs        int
	RAMMB       int
	RootSizeGB  int
	EphemeralGB int
}

// Image is a bootable disk image.
type Image struct {
	ID              string
	Name            string
	Status          string
	DiskFormat      string
	ContainerFormat string
	OwnerProjectID  string
	Global          bool
	SizeBytes       int64
	CreatedAt       time.Time
}

// ImageOpts contains the attributes of an image that can be changed.
type ImageOpts struct {
	Name   *string
	Global *bool
}

// Network is a network that instances can be attached to.
type Network struct {
	ID        string
	Name      string
	CIDR      string
	ProjectID string
	Shared    bool
}

// FirewallRuleSet is a security group.
type FirewallRuleSet struct {
	ID          string
	Name        string
	Description string
	ProjectID   string
	Rules       []FirewallRule
}

// FirewallRule is a single ingress rule in a FirewallRuleSet.
type FirewallRule struct {
	ID       string
	Protocol string
	PortMin  int
	PortMax  int
	Source   string
}

// Node is a hypervisor that instances can run on.
type Node struct {
	Name         string
	HostIP       string
	CPUs         int
	CPUsUsed     int
	MemoryMB     int
	MemoryMBUsed int
	DiskGB       int
	DiskGBUsed   int
	Instances    int
}

// KeyPair is a public SSH key that belongs to a user.
type KeyPair struct {
	Name        string
	UserID      string
	Fingerprint string
	PublicKey   string
}

// CloudDriver is the interface to the cloud control plane that hosts all
// resources exposed by the API.
//
// Get* methods return ErrNotFound when the requested object does not exist.
type CloudDriver interface {
	pluggable.Plugin
	// Init is called before any other interface methods, and allows the plugin to
	// perform first-time initialization.
	Init(ctx context.Context) error

	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	CreateProject(ctx context.Context, opts ProjectOpts) (Project, error)
	UpdateProject(ctx context.Context, id string, opts ProjectOpts) (Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, opts UserOpts) (User, error)
	UpdateUser(ctx context.Context, id string, opts UserOpts) (User, error)
	DeleteUser(ctx context.Context, id string) error

	// ListInstances lists the instances in the given project, or in all
	// projects if projectID is empty.
	ListInstances(ctx context.Context, projectID string) ([]Instance, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	CreateInstance(ctx context.Context, opts InstanceOpts) (Instance, error)
	RenameInstance(ctx context.Context, id, name string) (Instance, error)
	RebootInstance(ctx context.Context, id string, hard bool) error
	DeleteInstance(ctx context.Context, id string) error

	ListInstanceTypes(ctx context.Context) ([]InstanceType, error)
	GetInstanceType(ctx context.Context, id string) (InstanceType, error)
	CreateInstanceType(ctx context.Context, t InstanceType) (InstanceType, error)
	DeleteInstanceType(ctx context.Context, id string) error

	ListImages(ctx context.Context) ([]Image, error)
	GetImage(ctx context.Context, id string) (Image, error)
	UpdateImage(ctx context.Context, id string, opts ImageOpts) (Image, error)
	DeleteImage(ctx context.Context, id string) error

	ListNetworks(ctx context.Context) ([]Network, error)
	GetNetwork(ctx context.Context, id string) (Network, error)

	ListFirewallRuleSets(ctx context.Context) ([]FirewallRuleSet, error)
	GetFirewallRuleSet(ctx context.Context, id string) (FirewallRuleSet, error)

	ListNodes(ctx context.Context) ([]Node, error)

	ListKeyPairs(ctx context.Context, userID string) ([]KeyPair, error)
	GetKeyPair(ctx context.Context, userID, name string) (KeyPair, error)
	CreateKeyPair(ctx context.Context, userID, name, publicKey string) (KeyPair, error)
	DeleteKeyPair(ctx context.Context, userID, name string) error
}

// CloudDriverRegistry is a pluggable.Registry for CloudDriver implementations.
var CloudDriverRegistry pluggable.Registry[CloudDriver]

// NewCloudDriver creates a new CloudDriver using one of the plugins registered
// with CloudDriverRegistry.
//
// The supplied config must be a JSON string like `{"type":"foobar","params":{"foo":"bar"}}`.
func NewCloudDriver(ctx context.Context, configJSON string) (CloudDriver, error) {
	return newDriver("cloud driver", CloudDriverRegistry, configJSON, func(cd CloudDriver) error {
		return cd.Init(ctx)
	})
}

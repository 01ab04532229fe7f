// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"

	"github.com/sapcc/altai-api/internal/altai"
)

// janitorDummyRequest can be put in the Request field of type altai.AuditEvent.
var janitorDummyRequest = &http.Request{URL: &url.URL{
	Scheme: "http",
	Host:   "localhost",
	Path:   "altai-janitor",
}}

// Janitor contains the toolbox of the altai-janitor process.
type Janitor struct {
	cfg        altai.Configuration
	cloud      altai.CloudDriver
	db         *altai.DB
	auditTrail altai.AuditTrail

	// non-pure functions that can be replaced by deterministic doubles for unit tests
	timeNow   func() time.Time
	addJitter func(time.Duration) time.Duration
}

// NewJanitor creates a new Janitor.
func NewJanitor(cfg altai.Configuration, cd altai.CloudDriver, db *altai.DB, auditTrail altai.AuditTrail) *Janitor {
	return &Janitor{cfg, cd, db, auditTrail, time.Now, addJitter}
}

// OverrideTimeNow replaces time.Now with a test double.
func (j *Janitor) OverrideTimeNow(timeNow func() time.Time) *Janitor {
	j.timeNow = timeNow
	return j
}

// DisableJitter replaces addJitter with a no-op for this Janitor.
func (j *Janitor) DisableJitter() *Janitor {
	j.addJitter = func(d time.Duration) time.Duration { return d }
	return j
}

// addJitter returns a random duration within +/- 10% of the requested value.
// This can be used to even out the load on a scheduled job over time.
func addJitter(duration time.Duration) time.Duration {
	//nolint:gosec // This is not crypto-relevant, so math/rand is okay.
	r := rand.Float64() // NOTE: 0 <= r < 1
	return time.Duration(float64(duration) * (0.9 + 0.2*r))
}

// janitorIdentity is the altai.UserIdentity under which the janitor records
// audit events. It has no user ID because there is no corresponding user in
// the cloud.
func janitorIdentity(taskName string) altai.UserIdentity {
	return altai.UserIdentity{
		UserName: "altai-janitor",
		Info:     janitorUserInfo{TaskName: taskName},
	}
}

////////////////////////////////////////////////////////////////////////////////
// janitorUserInfo

// janitorUserInfo is an audittools.NonStandardUserInfo representing the
// altai-janitor (who does not have a corresponding OpenStack user).
type janitorUserInfo struct {
	TaskName string
}

// UserUUID implements the audittools.UserInfo interface.
func (janitorUserInfo) UserUUID() string {
	return "" // unused
}

// UserName implements the audittools.UserInfo interface.
func (janitorUserInfo) UserName() string {
	return "" // unused
}

// UserDomainName implements the audittools.UserInfo interface.
func (janitorUserInfo) UserDomainName() string {
	return "" // unused
}

// ProjectScopeUUID implements the audittools.UserInfo interface.
func (janitorUserInfo) ProjectScopeUUID() string {
	return "" // unused
}

// ProjectScopeName implements the audittools.UserInfo interface.
func (janitorUserInfo) ProjectScopeName() string {
	return "" // unused
}

// ProjectScopeDomainName implements the audittools.UserInfo interface.
func (janitorUserInfo) ProjectScopeDomainName() string {
	return "" // unused
}

// DomainScopeUUID implements the audittools.UserInfo interface.
func (janitorUserInfo) DomainScopeUUID() string {
	return "" // unused
}

// DomainScopeName implements the audittools.UserInfo interface.
func (janitorUserInfo) DomainScopeName() string {
	return "" // unused
}

// ApplicationCredentialID implements the audittools.UserInfo interface.
func (janitorUserInfo) ApplicationCredentialID() string {
	return "" // unused
}

// AsInitiator implements the audittools.NonStandardUserInfo interface.
func (u janitorUserInfo) AsInitiator(_ cadf.Host) cadf.Resource {
	return cadf.Resource{
		TypeURI: "service/altai/janitor-task",
		Name:    u.TaskName,
		Domain:  "altai",
		ID:      u.TaskName,
	}
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	. "github.com/majewsky/gg/option"
)

// InstanceData contains a record from the `instance_data` table.
//
// The cloud does not know about expiry and reminder dates, so these are kept
// in our own database, keyed by the server ID.
type InstanceData struct {
	InstanceID string `db:"instance_id"`
	ProjectID  string `db:"project_id"`

	// When ExpiresAt is reached, the instance is deleted (see tasks.ExpireInstancesJob).
	ExpiresAt Option[time.Time] `db:"expires_at"`
	// When RemindAt is reached, the owner is reminded about the upcoming
	// expiry (see tasks.RemindInstancesJob).
	RemindAt       Option[time.Time] `db:"remind_at"`
	LastRemindedAt Option[time.Time] `db:"last_reminded_at"`
	// When deleting an expired instance fails, the next attempt is delayed
	// until NextExpiryCheckAt.
	NextExpiryCheckAt Option[time.Time] `db:"next_expiry_check_at"`
}

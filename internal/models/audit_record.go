// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// AuditRecord contains a record from the `audit_log` table.
type AuditRecord struct {
	ID            int64     `db:"id"`
	ResourceType  string    `db:"resource_type"`
	ResourceID    string    `db:"resource_id"`
	Method        string    `db:"method"`
	StatusCode    int       `db:"status_code"`
	UserID        string    `db:"user_id"`
	ProjectID     string    `db:"project_id"`
	RemoteAddress string    `db:"remote_address"`
	Message       string    `db:"message"`
	CreatedAt     time.Time `db:"created_at"`
}

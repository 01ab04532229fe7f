// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// TokenPurpose is an enum for the possible values of Token.Purpose.
type TokenPurpose string

const (
	// InviteToken is issued when a user is invited. Accepting the invite
	// enables the user account.
	InviteToken TokenPurpose = "invite"
	// ResetPasswordToken is issued when a user requests a password reset.
	ResetPasswordToken TokenPurpose = "reset-password"
)

// Token contains a record from the `tokens` table. Tokens are single-use
// codes that are sent to users out of band.
type Token struct {
	Code      string       `db:"code"`
	Purpose   TokenPurpose `db:"purpose"`
	UserID    string       `db:"user_id"`
	Email     string       `db:"email"`
	CreatedAt time.Time    `db:"created_at"`
	ExpiresAt time.Time    `db:"expires_at"` // see tasks.TokenCleanupJob
	Complete  bool         `db:"complete"`
}

// IsUsable returns whether this token can still be redeemed.
func (t Token) IsUsable(now time.Time) bool {
	return !t.Complete && now.Before(t.ExpiresAt)
}

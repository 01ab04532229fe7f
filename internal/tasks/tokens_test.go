// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"testing"
	"time"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/must"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/models"
)

func TestTokenCleanupJob(t *testing.T) {
	j, s, registry := setup(t)
	cleanupJob := j.TokenCleanupJob(registry)

	now := s.Clock.Now()
	shortToken := must.ReturnT(altai.CreateToken(s.DB, altai.GenerateTokenCode(), models.ResetPasswordToken, "u-1", "alice@example.com", now, 1*time.Hour))(t)
	longToken := must.ReturnT(altai.CreateToken(s.DB, altai.GenerateTokenCode(), models.InviteToken, "u-2", "bob@example.com", now, 48*time.Hour))(t)
	claimed := must.ReturnT(altai.ClaimToken(s.DB, models.InviteToken, longToken.Code, now))(t)
	if !claimed {
		t.Fatal("could not claim the long-lived token")
	}

	tr, _ := easypg.NewTracker(t, s.DB.Db)

	// nothing to do yet
	expectSuccess(t, cleanupJob.ProcessOne(ctx))
	tr.DBChanges().AssertEmpty()

	// the short-lived token expires first
	s.Clock.StepBy(2 * time.Hour)
	expectSuccess(t, cleanupJob.ProcessOne(ctx))
	tr.DBChanges().AssertEqualf(`
		DELETE FROM tokens WHERE code = '%s';
	`, shortToken.Code)

	// redeemed tokens are kept until they expire
	s.Clock.StepBy(24 * time.Hour)
	expectSuccess(t, cleanupJob.ProcessOne(ctx))
	tr.DBChanges().AssertEmpty()

	s.Clock.StepBy(24 * time.Hour)
	expectSuccess(t, cleanupJob.ProcessOne(ctx))
	tr.DBChanges().AssertEqualf(`
		DELETE FROM tokens WHERE code = '%s';
	`, longToken.Code)
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/altai-api/internal/altai"
)

// TokenCleanupJob is a job. Each run deletes all invite and password reset
// tokens that have expired, regardless of whether they were redeemed.
func (j *Janitor) TokenCleanupJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.CronJob{
		Metadata: jobloop.JobMetadata{
			ReadableName: "token cleanup",
			CounterOpts: prometheus.CounterOpts{
				Name: "altai_token_cleanups",
				Help: "Counter for cleanup runs of expired one-time tokens.",
			},
		},
		Interval: j.addJitter(1 * time.Hour),
		Task: func(_ context.Context, _ prometheus.Labels) error {
			count, err := altai.DeleteExpiredTokens(j.db, j.timeNow())
			if err != nil {
				return err
			}
			if count > 0 {
				logg.Info("deleted %d expired tokens", count)
			}
			return nil
		},
	}).Setup(registerer)
}

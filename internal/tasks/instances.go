// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "github.com/majewsky/gg/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/models"
)

// how long to wait before retrying a failed deletion of an expired instance
const expiryRetryInterval = 10 * time.Minute

var expireInstanceSearchQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM instance_data
	 WHERE expires_at IS NOT NULL AND expires_at <= $1
	   AND (next_expiry_check_at IS NULL OR next_expiry_check_at <= $1)
	 ORDER BY expires_at ASC, instance_id ASC
	 LIMIT 1
`)

var expireInstanceRetryQuery = sqlext.SimplifyWhitespace(`
	UPDATE instance_data SET next_expiry_check_at = $2 WHERE instance_id = $1
`)

// ExpireInstancesJob is a job. Each task finds an instance whose expiry date
// has passed, and deletes it.
func (j *Janitor) ExpireInstancesJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.ProducerConsumerJob[models.InstanceData]{
		Metadata: jobloop.JobMetadata{
			ReadableName: "expire instances",
			CounterOpts: prometheus.CounterOpts{
				Name: "altai_instance_expirations",
				Help: "Counter for deletions of instances whose expiry date has passed.",
			},
		},
		DiscoverTask: func(_ context.Context, _ prometheus.Labels) (data models.InstanceData, err error) {
			err = j.db.SelectOne(&data, expireInstanceSearchQuery, j.timeNow())
			return data, err
		},
		ProcessTask: j.expireInstance,
	}).Setup(registerer)
}

func (j *Janitor) expireInstance(ctx context.Context, data models.InstanceData, _ prometheus.Labels) error {
	err := j.tryExpireInstance(ctx, data)
	if err == nil {
		return nil
	}
	// until the retry, the other expired instances get their turn
	_, retryErr := j.db.Exec(expireInstanceRetryQuery, data.InstanceID, j.timeNow().Add(j.addJitter(expiryRetryInterval)))
	if retryErr != nil {
		return fmt.Errorf("%w (additional error while scheduling retry: %s)", err, retryErr.Error())
	}
	return err
}

func (j *Janitor) tryExpireInstance(ctx context.Context, data models.InstanceData) error {
	inst, err := j.cloud.GetInstance(ctx, data.InstanceID)
	switch {
	case errors.Is(err, altai.ErrNotFound):
		// the instance was deleted behind our back, so only the bookkeeping remains
		logg.Info("dropping expiry data for instance %s which does not exist anymore", data.InstanceID)
		return altai.DeleteInstanceData(j.db, data.InstanceID)
	case err != nil:
		return fmt.Errorf("cannot inspect expired instance %s: %w", data.InstanceID, err)
	}

	err = j.cloud.DeleteInstance(ctx, inst.ID)
	if err != nil && !errors.Is(err, altai.ErrNotFound) {
		return fmt.Errorf("cannot delete expired instance %s: %w", inst.ID, err)
	}
	err = altai.DeleteInstanceData(j.db, inst.ID)
	if err != nil {
		return err
	}

	expiresAt := data.ExpiresAt.UnwrapOr(time.Time{})
	logg.Info("deleted instance %s (%q) in project %s because it expired at %s",
		inst.ID, inst.Name, inst.ProjectID, expiresAt.UTC().Format(time.RFC3339))
	j.auditTrail.Record(altai.AuditEvent{
		Request:      janitorDummyRequest,
		User:         janitorIdentity("instance-expiry"),
		StatusCode:   http.StatusNoContent,
		Action:       cadf.DeleteAction,
		ResourceType: "instances",
		ResourceID:   inst.ID,
		ResourceName: inst.Name,
		ProjectID:    inst.ProjectID,
		Message:      "expired",
	})
	return nil
}

var remindInstanceSearchQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM instance_data
	 WHERE remind_at IS NOT NULL AND remind_at <= $1 AND last_reminded_at IS NULL
	 ORDER BY remind_at ASC, instance_id ASC
	 LIMIT 1
`)

var remindInstanceDoneQuery = sqlext.SimplifyWhitespace(`
	UPDATE instance_data SET last_reminded_at = $2 WHERE instance_id = $1
`)

// RemindInstancesJob is a job. Each task finds an instance whose reminder date
// has passed and whose owner has not been reminded yet, and issues the
// reminder. Every instance is reminded at most once.
func (j *Janitor) RemindInstancesJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.ProducerConsumerJob[models.InstanceData]{
		Metadata: jobloop.JobMetadata{
			ReadableName: "remind instance owners",
			CounterOpts: prometheus.CounterOpts{
				Name: "altai_instance_reminders",
				Help: "Counter for reminders about instances that are about to expire.",
			},
		},
		DiscoverTask: func(_ context.Context, _ prometheus.Labels) (data models.InstanceData, err error) {
			err = j.db.SelectOne(&data, remindInstanceSearchQuery, j.timeNow())
			return data, err
		},
		ProcessTask: j.remindInstance,
	}).Setup(registerer)
}

func (j *Janitor) remindInstance(ctx context.Context, data models.InstanceData, _ prometheus.Labels) error {
	inst, err := j.cloud.GetInstance(ctx, data.InstanceID)
	switch {
	case errors.Is(err, altai.ErrNotFound):
		logg.Info("dropping reminder data for instance %s which does not exist anymore", data.InstanceID)
		return altai.DeleteInstanceData(j.db, data.InstanceID)
	case err != nil:
		return fmt.Errorf("cannot inspect instance %s for reminder: %w", data.InstanceID, err)
	}

	// mail delivery is not implemented, so the reminder goes into the log
	if expiresAt, ok := data.ExpiresAt.Unpack(); ok {
		logg.Info("REMINDER: instance %s (%q) in project %s created by user %q will expire at %s",
			inst.ID, inst.Name, inst.ProjectID, inst.UserID, expiresAt.UTC().Format(time.RFC3339))
	} else {
		logg.Info("REMINDER: instance %s (%q) in project %s created by user %q is still running",
			inst.ID, inst.Name, inst.ProjectID, inst.UserID)
	}

	_, err = j.db.Exec(remindInstanceDoneQuery, inst.ID, Some(j.timeNow()))
	return err
}

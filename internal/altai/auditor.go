// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/altai-api/internal/models"
)

// InitAuditor connects to the RabbitMQ instance that receives CADF audit
// events. If ALTAI_AUDIT_RABBITMQ_QUEUE_NAME is not set, CADF events are not
// sent and nil is returned.
func InitAuditor(ctx context.Context) (audittools.Auditor, error) {
	if os.Getenv("ALTAI_AUDIT_RABBITMQ_QUEUE_NAME") == "" {
		logg.Info("sending of CADF audit events is disabled")
		return nil, nil
	}
	return audittools.NewAuditor(ctx, audittools.AuditorOpts{
		EnvPrefix: "ALTAI_AUDIT_RABBITMQ",
		Observer: audittools.Observer{
			TypeURI: "service/altai",
			Name:    bininfo.Component(),
			ID:      audittools.GenerateUUID(),
		},
	})
}

// AuditEvent describes a change that was made through the API or by one of
// the background jobs.
type AuditEvent struct {
	// Request may only be nil if User.Info is an audittools.NonStandardUserInfo.
	Request      *http.Request
	User         UserIdentity
	StatusCode   int
	Action       cadf.Action
	ResourceType string // e.g. "instances"
	ResourceID   string
	ResourceName string
	ProjectID    string
	Message      string
}

// AuditTrail stores audit events in the audit_log table, and additionally
// forwards them to the CADF auditor if one is configured.
type AuditTrail struct {
	DB      *DB
	Auditor audittools.Auditor // optional
	TimeNow func() time.Time
}

// Record stores the given event. Failure to store an audit event does not
// undo the change that it describes, so errors are only logged.
func (t AuditTrail) Record(ev AuditEvent) {
	now := t.TimeNow()
	record := models.AuditRecord{
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Method:       string(ev.Action),
		StatusCode:   ev.StatusCode,
		UserID:       ev.User.UserID,
		ProjectID:    ev.ProjectID,
		Message:      ev.Message,
		CreatedAt:    now,
	}
	if ev.Request != nil {
		record.RemoteAddress = httpext.GetRequesterIPFor(ev.Request)
	}
	err := InsertAuditRecord(t.DB, &record)
	if err != nil {
		logg.Error("could not store audit record for %s %s/%s: %s",
			ev.Action, ev.ResourceType, ev.ResourceID, err.Error())
	}

	if t.Auditor != nil && ev.User.Info != nil {
		t.Auditor.Record(audittools.Event{
			Time:       now,
			Request:    ev.Request,
			User:       ev.User.Info,
			ReasonCode: ev.StatusCode,
			Action:     ev.Action,
			Target:     auditTarget(ev),
		})
	}
}

// auditTarget is an audittools.Target.
type auditTarget AuditEvent

// Render implements the audittools.Target interface.
func (a auditTarget) Render() cadf.Resource {
	return cadf.Resource{
		TypeURI:   "altai/" + a.ResourceType,
		ID:        a.ResourceID,
		Name:      a.ResourceName,
		ProjectID: a.ProjectID,
	}
}

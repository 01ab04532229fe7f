// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"sync"
	"testing"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/audittools"
)

// AuditEvent is the part of an audittools.Event that tests care about.
type AuditEvent struct {
	Action     cadf.Action
	ReasonCode int
	Target     cadf.Resource
}

// Auditor is a test recorder that satisfies the audittools.Auditor interface.
type Auditor struct {
	mutex  sync.Mutex
	events []AuditEvent
}

// Record implements the audittools.Auditor interface.
func (a *Auditor) Record(event audittools.Event) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.events = append(a.events, AuditEvent{
		Action:     event.Action,
		ReasonCode: event.ReasonCode,
		Target:     event.Target.Render(),
	})
}

// ExpectEvents checks that the recorded events are equivalent to the supplied
// expectation, then forgets all recorded events.
func (a *Auditor) ExpectEvents(t *testing.T, expectedEvents ...AuditEvent) {
	t.Helper()
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(expectedEvents) == 0 {
		expectedEvents = nil
	}
	assert.DeepEqual(t, "CADF events", a.events, expectedEvents)
	a.events = nil
}

// IgnoreEventsUntilNow clears the list of recorded events, so that the next
// ExpectEvents() will only cover events generated after this point.
func (a *Auditor) IgnoreEventsUntilNow() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.events = nil
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/mock"
	"github.com/sapcc/go-bits/osext"

	"github.com/sapcc/altai-api/internal/altai"
	altaiv1 "github.com/sapcc/altai-api/internal/api/altai"
)

// Setup contains all the pieces that are needed for most tests.
type Setup struct {
	Config     altai.Configuration
	DB         *altai.DB
	Clock      *mock.Clock
	AD         *AuthDriver
	CD         *CloudDriver
	Auditor    *Auditor
	AuditTrail altai.AuditTrail
	// Handler serves the Altai API with all of the above.
	Handler http.Handler
}

type setupParams struct {
	DefaultInstanceTTL time.Duration
	GenerateTokenCode  func() string
}

// SetupOption is an option that can be given to NewSetup().
type SetupOption func(*setupParams)

// WithDefaultInstanceTTL is a SetupOption that sets
// Configuration.DefaultInstanceTTL.
func WithDefaultInstanceTTL(d time.Duration) SetupOption {
	return func(params *setupParams) {
		params.DefaultInstanceTTL = d
	}
}

// WithTokenCodeGenerator is a SetupOption that replaces the random generation
// of invite and password reset codes.
func WithTokenCodeGenerator(generateTokenCode func() string) SetupOption {
	return func(params *setupParams) {
		params.GenerateTokenCode = generateTokenCode
	}
}

// NewSetup prepares most or all pieces of Altai for a test.
func NewSetup(t *testing.T, opts ...SetupOption) Setup {
	t.Helper()
	logg.ShowDebug = osext.GetenvBool("ALTAI_DEBUG")
	var params setupParams
	for _, option := range opts {
		option(&params)
	}

	dbConn := easypg.ConnectForTest(t, altai.DBConfiguration(),
		easypg.ClearTables("instance_data", "tokens", "audit_log", "config_params"),
		easypg.ResetPrimaryKeys("audit_log"),
	)

	s := Setup{
		Config: altai.Configuration{
			APIPublicURL:       "https://altai.example.org",
			InviteTTL:          7 * 24 * time.Hour,
			ResetTokenTTL:      24 * time.Hour,
			DefaultInstanceTTL: params.DefaultInstanceTTL,
		},
		DB:      altai.InitORM(dbConn),
		Clock:   mock.NewClock(),
		Auditor: &Auditor{},
	}
	// start at a round, recognizable point in time
	s.Clock.StepBy(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Sub(s.Clock.Now()))

	ctx := context.Background()
	ad, err := altai.NewAuthDriver(ctx, `{"type":"unittest"}`)
	if err != nil {
		t.Fatal(err.Error())
	}
	s.AD = ad.(*AuthDriver)
	cd, err := altai.NewCloudDriver(ctx, `{"type":"unittest"}`)
	if err != nil {
		t.Fatal(err.Error())
	}
	s.CD = cd.(*CloudDriver)
	s.CD.TimeNow = s.Clock.Now

	s.AuditTrail = altai.AuditTrail{
		DB:      s.DB,
		Auditor: s.Auditor,
		TimeNow: s.Clock.Now,
	}
	api := altaiv1.NewAPI(s.Config, s.AD, s.CD, s.DB, s.AuditTrail).OverrideTimeNow(s.Clock.Now)
	if params.GenerateTokenCode != nil {
		api.OverrideGenerateTokenCode(params.GenerateTokenCode)
	}
	s.Handler = httpapi.Compose(api, httpapi.WithoutLogging())
	return s
}

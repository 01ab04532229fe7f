// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package janitorcmd

import (
	"net/http"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	"github.com/sapcc/altai-api/internal/altai"
	"github.com/sapcc/altai-api/internal/tasks"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Run the altai-janitor server component.",
		Long:  "Run the altai-janitor server component. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	_, _ = cmd, args

	altai.SetTaskName("janitor")

	cfg := altai.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)
	auditor := must.Return(altai.InitAuditor(ctx))

	dbURL, dbName := altai.GetDatabaseURLFromEnvironment()
	dbConn := must.Return(easypg.Connect(dbURL, altai.DBConfiguration()))
	prometheus.MustRegister(sqlstats.NewStatsCollector(dbName, dbConn))
	db := altai.InitORM(dbConn)

	cd := must.Return(altai.NewCloudDriver(ctx, osext.MustGetenv("ALTAI_DRIVER_CLOUD")))
	auditTrail := altai.AuditTrail{DB: db, Auditor: auditor, TimeNow: time.Now}

	// start task loops
	janitor := tasks.NewJanitor(cfg, cd, db, auditTrail)
	go janitor.ExpireInstancesJob(nil).Run(ctx)
	go janitor.RemindInstancesJob(nil).Run(ctx)
	go janitor.TokenCleanupJob(nil).Run(ctx)

	// start HTTP server for Prometheus metrics and health check
	handler := httpapi.Compose(httpapi.HealthCheckAPI{
		SkipRequestLog: true,
		Check: func() error {
			return db.Db.PingContext(ctx)
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	listenAddress := osext.GetenvOrDefault("ALTAI_JANITOR_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, listenAddress, mux))
}

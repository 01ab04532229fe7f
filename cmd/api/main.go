// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package apicmd

import (
	"net/http"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpapi/pprofapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	"github.com/sapcc/altai-api/internal/altai"
	altaiv1 "github.com/sapcc/altai-api/internal/api/altai"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the altai-api server component.",
		Long:  "Run the altai-api server component. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	_, _ = cmd, args

	altai.SetTaskName("api")

	cfg := altai.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)
	auditor := must.Return(altai.InitAuditor(ctx))

	dbURL, dbName := altai.GetDatabaseURLFromEnvironment()
	dbConn := must.Return(easypg.Connect(dbURL, altai.DBConfiguration()))
	prometheus.MustRegister(sqlstats.NewStatsCollector(dbName, dbConn))
	db := altai.InitORM(dbConn)

	ad := must.Return(altai.NewAuthDriver(ctx, osext.MustGetenv("ALTAI_DRIVER_AUTH")))
	cd := must.Return(altai.NewCloudDriver(ctx, osext.MustGetenv("ALTAI_DRIVER_CLOUD")))
	auditTrail := altai.AuditTrail{DB: db, Auditor: auditor, TimeNow: time.Now}

	// wire up HTTP handlers
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "User-Agent", "Authorization", "X-Auth-Token"},
	})
	handler := httpapi.Compose(
		altaiv1.NewAPI(cfg, ad, cd, db, auditTrail),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check: func() error {
				return db.Db.PingContext(ctx)
			},
		},
		httpapi.WithGlobalMiddleware(reportClientIP),
		httpapi.WithGlobalMiddleware(corsMiddleware.Handler),
		pprofapi.API{IsAuthorized: pprofapi.IsRequestFromLocalhost},
	)
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	// start HTTP server
	apiListenAddress := osext.GetenvOrDefault("ALTAI_API_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, apiListenAddress, mux))
}

func reportClientIP(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// audit records carry this address, so operators can check that
		// X-Forwarded-For survives the reverse proxies
		w.Header().Set("X-Altai-Your-Ip", httpext.GetRequesterIPFor(r))
		inner.ServeHTTP(w, r)
	})
}

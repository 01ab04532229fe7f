// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	apicmd "github.com/sapcc/altai-api/cmd/api"
	janitorcmd "github.com/sapcc/altai-api/cmd/janitor"
	"github.com/sapcc/altai-api/internal/altai"

	// include all known driver implementations
	_ "github.com/sapcc/altai-api/internal/drivers/openstack"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("ALTAI_DEBUG")
	altai.SetupHTTPClient()

	rootCmd := &cobra.Command{
		Use:     "altai-api",
		Short:   "REST API for the Altai private cloud",
		Long:    "Altai is a simplified private cloud on top of OpenStack. This binary contains the API server and the janitor.",
		Version: bininfo.VersionOr("rolling"),
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Server commands.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}
	apicmd.AddCommandTo(serverCmd)
	janitorcmd.AddCommandTo(serverCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		logg.Fatal(err.Error())
	}
}

// Package main provides the portlet-extender binary entry point. It loads
// module bundles from a directory, registers a portlet for every npm module
// among them and serves the portlets over HTTP.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const appName = "portlet-extender"

var (
	// Version is set at build time.
	Version = "0.1.0"
	// BuildTime is set at build time.
	BuildTime = "dev"
)

func main() {
	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	run := runCmd(stderr)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Register npm modules as portlets",
		Long: `portlet-extender watches a directory of module bundles. Every active
module wired to the liferay.npm.portlet extender and shipping
META-INF/resources/package.json is registered as a portlet, for as long as
a JSON parser service is available.`,
		SilenceUsage: true,
		RunE:         run.RunE,
	}
	cmd.Flags().AddFlagSet(run.Flags())
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(run, inspectCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

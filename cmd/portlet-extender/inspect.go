package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	extender "github.com/reglet-dev/npm-portlet-extender"
	"github.com/reglet-dev/npm-portlet-extender/bundlefs"
	"github.com/reglet-dev/npm-portlet-extender/capability"
	"github.com/reglet-dev/npm-portlet-extender/jsonvalue"
	"github.com/reglet-dev/npm-portlet-extender/module"
	"github.com/reglet-dev/npm-portlet-extender/properties"
	"github.com/reglet-dev/npm-portlet-extender/registry"
	"github.com/spf13/cobra"
)

// inspection is the report printed by the inspect command.
type inspection struct {
	Properties jsonvalue.Value `json:"properties"`
	Bundle     string          `json:"bundle"`
	Module     string          `json:"module"`
	Version    string          `json:"version"`
	Digest     string          `json:"digest"`
	Error      string          `json:"error,omitempty"`
	Qualifies  bool            `json:"qualifies"`
	Registered bool            `json:"registered"`
}

func inspectCmd() *cobra.Command {
	var descriptorPath string

	cmd := &cobra.Command{
		Use:   "inspect <bundle-dir>",
		Short: "Show whether a bundle yields a portlet and with which properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspect(args[0], descriptorPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&descriptorPath, "descriptor-path", extender.DefaultDescriptorPath, "Descriptor location inside the bundle")
	return cmd
}

// inspect runs one bundle through a private framework and tracker.
func inspect(dir, descriptorPath string) (*inspection, error) {
	b, err := bundlefs.Load(dir)
	if err != nil {
		return nil, err
	}

	report := &inspection{
		Bundle:  b.Dir,
		Module:  b.Manifest.Name,
		Version: b.Manifest.Version,
		Digest:  b.Digest.String(),
	}

	logger := slog.New(slog.DiscardHandler)
	fw := module.NewFramework(
		module.WithLogger(logger),
		module.WithProvidedCapabilities(extender.ProvidedCapability()),
	)
	m, err := fw.Install(b.Manifest.Definition(b.Resources))
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}
	if err := fw.Start(m.ID()); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.SymbolicName(), err)
	}
	report.Qualifies = capability.OptIn(m)

	reg := registry.NewRegistry(registry.WithLogger(logger))
	tracker := extender.NewTracker(fw, reg, jsonvalue.NewParser(),
		extender.WithLogger(logger),
		extender.WithDescriptorPath(descriptorPath),
	)
	if err := tracker.HandleEvent(module.Event{Kind: module.EventActivated, Module: m}); err != nil {
		report.Error = err.Error()
	}
	if r, ok := tracker.Registration(m.ID()); ok {
		props, err := properties.Expand(r.Properties())
		if err != nil {
			return nil, err
		}
		report.Registered = true
		report.Properties = props
	}
	tracker.Close()
	return report, nil
}

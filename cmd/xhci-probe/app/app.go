// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package app implements the xhci-probe command line.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/xhci-utils/hostutils/host"
	"github.com/ironcore-dev/xhci-utils/logutils/diag"
	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const (
	mechanismAuto = "auto"

	logFormatZap  = "zap"
	logFormatLine = "line"
)

type globalOptions struct {
	verbosity  int
	logFormat  string
	mechanism  string
	sysfsMount string
	maxDepth   int
}

func (o *globalOptions) logger(w io.Writer) (logr.Logger, error) {
	switch o.logFormat {
	case logFormatZap:
		return zap.New(zap.WriteTo(w), zap.Level(zapcore.Level(-o.verbosity))), nil
	case logFormatLine:
		return diag.NewLogger(diag.WriterLine(w), diag.Options{Verbosity: o.verbosity}), nil
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q", o.logFormat)
	}
}

// New returns the root command.
func New() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "xhci-probe",
		Short: "Enumerates PCI and brings xHCI controllers to a reset state",
		Long: `Walk the PCI hierarchy through configuration mechanism #1 or sysfs,
locate xHCI controllers and take them over from firmware.
`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.IntVarP(&opts.verbosity, "verbosity", "v", 0, "log verbosity")
	flags.StringVar(&opts.logFormat, "log-format", logFormatZap, "log output, one of zap or line")
	flags.StringVar(&opts.mechanism, "mechanism", mechanismAuto, "configuration access, one of auto, port-io or sysfs")
	flags.StringVar(&opts.sysfsMount, "sysfs", "/sys", "sysfs mount point")
	flags.IntVar(&opts.maxDepth, "max-depth", 0, "maximum bridge nesting followed by the scan")

	cmd.AddCommand(scanCmd(opts), listCmd(opts), bringUpCmd(opts))
	return cmd
}

// resolveMechanism picks the configuration access for platform. auto takes
// the platform's preferred mechanism.
func resolveMechanism(requested string, platform *host.Platform) (host.Mechanism, error) {
	if requested == mechanismAuto {
		return platform.Preferred(), nil
	}
	m := host.Mechanism(requested)
	if !platform.Supports(m) {
		return "", fmt.Errorf("mechanism %s is not supported on %s/%s", requested, platform.OS, platform.Architecture)
	}
	return m, nil
}

// openConfigSpace returns the configuration space for the requested
// mechanism and a function releasing it.
func (o *globalOptions) openConfigSpace(log logr.Logger) (pci.ConfigSpace, func() error, error) {
	platform, err := host.CurrentPlatform()
	if err != nil {
		return nil, nil, err
	}
	mechanism, err := resolveMechanism(o.mechanism, platform)
	if err != nil {
		return nil, nil, err
	}
	log.V(1).Info("Using configuration mechanism", "mechanism", mechanism)

	switch mechanism {
	case host.MechanismPortIO:
		port, err := pci.OpenHostPort()
		if err != nil {
			return nil, nil, err
		}
		return pci.NewPortConfigSpace(port), func() error {
			return errors.Join(port.Err(), port.Close())
		}, nil
	default:
		return pci.NewSysfsConfigSpaceWithMount(log, o.sysfsMount, 0), func() error { return nil }, nil
	}
}

// scan walks every bus and returns the filled registry.
func (o *globalOptions) scan(log logr.Logger) (_ *pci.Registry, err error) {
	cs, release, err := o.openConfigSpace(log)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, release()) }()

	scanner, err := pci.NewScanner(log, cs, nil, pci.ScannerOptions{MaxDepth: o.maxDepth})
	if err != nil {
		return nil, err
	}
	if err := scanner.ScanAllBus(); err != nil {
		return scanner.Registry(), err
	}
	return scanner.Registry(), nil
}

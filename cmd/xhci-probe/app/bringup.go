// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"

	"github.com/ironcore-dev/xhci-utils/eventutils/recorder"
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func bringUpCmd(opts *globalOptions) *cobra.Command {
	var (
		options      xhci.Options
		forceHandoff bool
		showMetrics  bool
	)
	cmd := &cobra.Command{
		Use:   "bringup [address]",
		Short: "Take an xHCI controller from firmware, halt and reset it",
		Long: `Locate the xHCI controller at address, or the first one found, map its
registers through /dev/mem and run the firmware handoff, halt and reset.
`,
		Example: `xhci-probe bringup 0000:00:14.0 --handoff-timeout 2s`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			log, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			registry, err := opts.scan(log)
			if err != nil {
				log.Error(err, "Scan incomplete, continuing with the devices found")
			}
			if registry == nil {
				return err
			}

			var address string
			if len(args) > 0 {
				address = args[0]
			}
			device, err := selectController(xhci.FindControllers(registry), address)
			if err != nil {
				return err
			}
			base, err := xhci.MMIOBase(device)
			if err != nil {
				return err
			}

			mem, err := mmio.OpenDevMem(log)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, mem.Close()) }()

			events := recorder.NewEventStore(log, recorder.EventStoreOptions{})
			options.Recorder = events
			if forceHandoff {
				options.HandoffPolicy = xhci.HandoffForce
			}

			reg := prometheus.NewRegistry()
			if options.Metrics, err = xhci.NewMetrics(reg); err != nil {
				return err
			}
			if showMetrics {
				defer func() { err = errors.Join(err, writeMetrics(cmd.OutOrStdout(), reg)) }()
			}

			controller, err := xhci.BringUp(cmd.Context(), log, mem, device.Address.String(), base, options)
			writeEvents(cmd.OutOrStdout(), events.ListEvents())
			if err != nil {
				return fmt.Errorf("failed to bring up %s: %w", device.Address, err)
			}
			defer func() { err = errors.Join(err, controller.Close()) }()

			writeController(cmd.OutOrStdout(), controller)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&options.HandoffTimeout, "handoff-timeout", xhci.DefaultHandoffTimeout, "time firmware gets to release the controller")
	flags.DurationVar(&options.HaltTimeout, "halt-timeout", xhci.DefaultHaltTimeout, "time the controller gets to halt")
	flags.DurationVar(&options.ResetTimeout, "reset-timeout", xhci.DefaultResetTimeout, "time the controller gets to finish its reset")
	flags.DurationVar(&options.PollInterval, "poll-interval", xhci.DefaultPollInterval, "register polling interval")
	flags.Uint64Var(&options.RegionSize, "region-size", xhci.DefaultRegionSize, "size of the mapped register space")
	flags.BoolVar(&showMetrics, "metrics", false, "print bring-up metrics when done")
	flags.BoolVar(&forceHandoff, "force-handoff", false, "clear the firmware semaphore when the handoff times out")
	return cmd
}

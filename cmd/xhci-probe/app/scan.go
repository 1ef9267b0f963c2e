// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
	"github.com/spf13/cobra"
)

func scanCmd(opts *globalOptions) *cobra.Command {
	var xhciOnly bool
	cmd := &cobra.Command{
		Use:     "scan",
		Short:   "Enumerate every PCI function reachable from bus 0",
		Example: `xhci-probe scan --mechanism port-io`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			registry, err := opts.scan(log)
			if err != nil && registry == nil {
				return err
			}
			if err != nil {
				log.Error(err, "Scan incomplete", "devices", registry.Len())
			}

			devices := registry.Devices()
			if xhciOnly {
				devices = registry.Find(func(device pci.Device) bool {
					return device.ClassCode.IsXHCI()
				})
			}
			writeDevices(cmd.OutOrStdout(), devices)
			return err
		},
	}
	cmd.Flags().BoolVar(&xhciOnly, "xhci", false, "only print xHCI controllers")
	return cmd
}

func listCmd(opts *globalOptions) *cobra.Command {
	var vendor uint32
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List xHCI controllers known to the kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reader, err := pci.NewSysfsReaderWithMount(log, opts.sysfsMount, pci.Vendor(vendor), pci.ClassXHCIController)
			if err != nil {
				return err
			}
			addresses, err := reader.Read()
			if err != nil {
				return err
			}
			for _, address := range addresses {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), address)
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&vendor, "vendor", uint32(pci.VendorAny), "only list controllers of this vendor id")
	return cmd
}

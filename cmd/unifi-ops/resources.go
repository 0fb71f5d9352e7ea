package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/resources"
)

func newSitesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List sites visible to the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := a.resources().Sites(ctxOf(cmd))
			if err != nil {
				return err
			}
			if emit(sites) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDEVICES\tDESCRIPTION")
			for _, site := range sites {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", site.ID, site.Name, site.DeviceCount, site.Description)
			}
			return w.Flush()
		},
	}
}

func newDevicesCmd(a *app) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List managed devices on the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.resources().Devices(ctxOf(cmd), a.site(), resources.ListOptions{Offset: offset, Limit: limit})
			if err != nil {
				return err
			}
			if emit(page) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tMAC\tIP\tSTATE\tFIRMWARE")
			for _, dev := range page.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					dev.ID, dev.Name, dev.Model, dev.MAC, dev.IP, dev.State, dev.Firmware)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			printPageFooter(page.Offset, page.Count, page.TotalCount)
			return nil
		},
	}
	addPageFlags(cmd, &offset, &limit)
	cmd.AddCommand(newDeviceRestartCmd(a))
	return cmd
}

func newDeviceRestartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <device-id>",
		Short: "Power-cycle a managed device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(fmt.Sprintf("Restart device %s on site %q?", args[0], a.site())) {
				return fmt.Errorf("aborted")
			}
			if err := a.resources().RestartDevice(ctxOf(cmd), a.site(), args[0], true); err != nil {
				return err
			}
			fmt.Printf("Restart issued for device %s\n", args[0])
			return nil
		},
	}
}

func newClientsCmd(a *app) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List and manage connected clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.resources().Clients(ctxOf(cmd), a.site(), resources.ListOptions{Offset: offset, Limit: limit})
			if err != nil {
				return err
			}
			if emit(page) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMAC\tIP\tTYPE\tBLOCKED")
			for _, cl := range page.Data {
				name := cl.Name
				if name == "" {
					name = cl.Hostname
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
					cl.ID, name, cl.MAC, cl.IP, cl.Type, cl.Blocked)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			printPageFooter(page.Offset, page.Count, page.TotalCount)
			return nil
		},
	}
	addPageFlags(cmd, &offset, &limit)
	cmd.AddCommand(newClientBlockCmd(a, "block", "Block a client from the network"))
	cmd.AddCommand(newClientBlockCmd(a, "unblock", "Unblock a previously blocked client"))
	return cmd
}

func newClientBlockCmd(a *app, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <client-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(fmt.Sprintf("%s client %s on site %q?", action, args[0], a.site())) {
				return fmt.Errorf("aborted")
			}
			svc := a.resources()
			var err error
			if action == "block" {
				err = svc.BlockClient(ctxOf(cmd), a.site(), args[0], true)
			} else {
				err = svc.UnblockClient(ctxOf(cmd), a.site(), args[0], true)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Client %s %sed\n", args[0], action)
			return nil
		},
	}
}

func newNetworksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List configured networks on the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			networks, err := a.resources().Networks(ctxOf(cmd), a.site())
			if err != nil {
				return err
			}
			if emit(networks) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPURPOSE\tVLAN\tSUBNET\tENABLED")
			for _, net := range networks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\n",
					net.ID, net.Name, net.Purpose, net.VLANID, net.Subnet, net.Enabled)
			}
			return w.Flush()
		},
	}
}

func newFirewallCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firewall",
		Short: "Inspect firewall configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "zones",
		Short: "List firewall zones on the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			zones, err := a.resources().FirewallZones(ctxOf(cmd), a.site())
			if err != nil {
				return err
			}
			if emit(zones) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tNETWORKS")
			for _, zone := range zones {
				fmt.Fprintf(w, "%s\t%s\t%d\n", zone.ID, zone.Name, len(zone.NetworkIDs))
			}
			return w.Flush()
		},
	})
	return cmd
}

func newVouchersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vouchers",
		Short: "Manage guest hotspot vouchers",
	}
	cmd.AddCommand(newVouchersListCmd(a))
	cmd.AddCommand(newVouchersCreateCmd(a))
	cmd.AddCommand(newVouchersRevokeCmd(a))
	return cmd
}

func newVouchersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vouchers on the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			vouchers, err := a.resources().Vouchers(ctxOf(cmd), a.site())
			if err != nil {
				return err
			}
			if emit(vouchers) {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tTIME LIMIT\tEXPIRES")
			for _, v := range vouchers {
				expires := ""
				if !v.ExpiresAt.IsZero() {
					expires = v.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%s\n",
					v.ID, v.Code, v.Name, v.TimeLimitMinutes, expires)
			}
			return w.Flush()
		},
	}
}

func newVouchersCreateCmd(a *app) *cobra.Command {
	var spec models.VoucherSpec
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create guest vouchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(fmt.Sprintf("Create %d voucher(s) on site %q?", spec.Count, a.site())) {
				return fmt.Errorf("aborted")
			}
			vouchers, err := a.resources().CreateVouchers(ctxOf(cmd), a.site(), spec, true)
			if err != nil {
				return err
			}
			if emit(vouchers) {
				return nil
			}
			for _, v := range vouchers {
				fmt.Println(v.Code)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&spec.Count, "count", 1, "number of vouchers to create")
	cmd.Flags().StringVar(&spec.Name, "name", "", "voucher note")
	cmd.Flags().IntVar(&spec.TimeLimitMinutes, "minutes", 1440, "access duration in minutes")
	cmd.Flags().IntVar(&spec.AuthorizedGuestLimit, "guests", 0, "device limit per voucher, 0 for unlimited")
	cmd.Flags().IntVar(&spec.DataUsageLimitMB, "data-mb", 0, "data cap in MB, 0 for unlimited")
	return cmd
}

func newVouchersRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "revoke <voucher-id>",
		Aliases: []string{"delete"},
		Short:   "Revoke a voucher",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(fmt.Sprintf("Revoke voucher %s on site %q?", args[0], a.site())) {
				return fmt.Errorf("aborted")
			}
			if err := a.resources().DeleteVoucher(ctxOf(cmd), a.site(), args[0], true); err != nil {
				return err
			}
			fmt.Printf("Revoked voucher %s\n", args[0])
			return nil
		},
	}
}

func addPageFlags(cmd *cobra.Command, offset, limit *int) {
	cmd.Flags().IntVar(offset, "offset", 0, "pagination offset")
	cmd.Flags().IntVar(limit, "limit", 0, "page size, 0 for server default")
}

func printPageFooter(offset, count, total int) {
	if total > 0 && count < total {
		fmt.Printf("Showing %d-%d of %d\n", offset+1, offset+count, total)
	}
}

// Command router runs an IPv4 router node (spec §4.4–§4.6) as an
// independent OS process: longest-prefix-match forwarding, ARP
// resolution, and dynamic-route handling, over loopback UDP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursenet/dataplane/internal/cliutil"
	"github.com/coursenet/dataplane/internal/control"
	"github.com/coursenet/dataplane/internal/paramsfile"
	"github.com/coursenet/dataplane/internal/routercore"
	"github.com/coursenet/dataplane/internal/topology"
	"github.com/coursenet/dataplane/pkg/netio"
)

var (
	flagTopology     string
	flagVerbose      bool
	flagBasePort     int
	flagStatusSocket string
)

var rootCmd = &cobra.Command{
	Use:   "router <node> <forwarding-table-file>",
	Short: "Run an IPv4 router dataplane node",
	Args:  cobra.ExactArgs(2),
	RunE:  runRouter,
}

func init() {
	rootCmd.Flags().StringVar(&flagTopology, "topology", "topology.toml", "path to the topology file")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().IntVar(&flagBasePort, "base-port", 30000, "base loopback UDP port for the topology's port assignment")
	rootCmd.Flags().StringVar(&flagStatusSocket, "status-socket", "", "path for an optional status server unix socket")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRouter(cmd *cobra.Command, args []string) error {
	node, forwardingTablePath := args[0], args[1]
	logger := cliutil.NewLogger(flagVerbose, node)

	topo, err := cliutil.LoadTopology(flagTopology)
	if err != nil {
		return err
	}

	io, err := cliutil.DialNode(topo, node, flagBasePort, logger)
	if err != nil {
		return err
	}
	defer io.Close()

	r := routercore.New(io, netio.SystemClock{}, logger)

	rows, err := paramsfile.LoadForwardingTable(forwardingTablePath)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if err := installForwardingTable(r, topo.Nodes[node], rows, logger); err != nil {
		return fmt.Errorf("router: %w", err)
	}

	if flagStatusSocket != "" {
		start := time.Now()
		srv := control.NewServer(flagStatusSocket, func() control.Status {
			return routerStatus(node, start, r)
		}, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("router: starting status server: %w", err)
		}
		defer srv.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting router", "node", node, "topology", flagTopology)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	logger.Info("router stopped")
	return nil
}

// installForwardingTable resolves each preloaded row's interface name to
// this node's own MAC (spec §6's forwarding_table.txt rows carry an
// ifname, not a MAC) and installs it as a static route.
func installForwardingTable(r *routercore.Router, self topology.Node, rows []paramsfile.ForwardingRow, logger *slog.Logger) error {
	for _, row := range rows {
		intf, ok := self.InterfaceByName(row.IfName)
		if !ok {
			logger.Warn("forwarding table row references unknown interface, skipping", "ifname", row.IfName)
			continue
		}
		ones, bits := net.IPMask(row.Mask.To4()).Size()
		mask := net.CIDRMask(ones, bits)
		prefix := &net.IPNet{IP: row.Prefix.Mask(mask), Mask: mask}
		r.AddStaticRoute(prefix, row.NextHop, intf.HWAddr)
	}
	return nil
}

// routerStatus builds the control.Status document served by the status
// server, translating Router's accessor methods into wire-friendly types.
func routerStatus(node string, start time.Time, r *routercore.Router) control.Status {
	var routes []control.RouteEntry
	for _, e := range r.Routes() {
		nextHop := ""
		if e.NextHop != nil {
			nextHop = e.NextHop.String()
		}
		routes = append(routes, control.RouteEntry{
			Prefix:  e.Prefix.String(),
			NextHop: nextHop,
			Port:    e.OutPortMAC.String(),
			Local:   e.Local,
		})
	}

	var arp []control.ARPEntry
	for ip, mac := range r.LocalARPEntries() {
		arp = append(arp, control.ARPEntry{IP: ip, MAC: mac.String(), Local: true})
	}
	for ip, mac := range r.ARPCache() {
		arp = append(arp, control.ARPEntry{IP: ip, MAC: mac.String()})
	}

	return control.Status{
		Node:          node,
		Role:          "router",
		UptimeSeconds: time.Since(start).Seconds(),
		Detail:        control.RouterDetail{Routes: routes, ARP: arp},
	}
}

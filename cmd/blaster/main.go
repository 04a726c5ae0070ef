// Command blaster runs the reliable sender (spec §4.7) as an independent
// OS process: it blasts a fixed number of sequenced packets at a blastee
// across the topology, honoring a sliding window and EWMA-driven
// retransmit, and prints its transfer metrics on completion.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursenet/dataplane/internal/blast"
	"github.com/coursenet/dataplane/internal/cliutil"
	"github.com/coursenet/dataplane/internal/control"
	"github.com/coursenet/dataplane/internal/paramsfile"
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
	Use:   "blaster <node> <params-file>",
	Short: "Run the reliable-sender dataplane node",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlaster,
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

func runBlaster(cmd *cobra.Command, args []string) error {
	node, paramsPath := args[0], args[1]
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

	cfg, err := paramsfile.LoadBlasterParams(paramsPath)
	if err != nil {
		return fmt.Errorf("blaster: %w", err)
	}

	intf, targetMAC, err := blasterLink(topo, node)
	if err != nil {
		return fmt.Errorf("blaster: %w", err)
	}

	s := blast.NewSender(cfg, intf, targetMAC, logger)

	if flagStatusSocket != "" {
		start := time.Now()
		srv := control.NewServer(flagStatusSocket, func() control.Status {
			return blastStatus(node, start, s)
		}, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("blaster: starting status server: %w", err)
		}
		defer srv.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting blaster", "node", node, "blastee_ip", cfg.BlasteeIP, "total_packets", cfg.TotalPackets)
	metrics, err := blast.Run(ctx, io, netio.SystemClock{}, s)
	if err != nil {
		return fmt.Errorf("blaster: %w", err)
	}
	printMetrics(metrics)
	return nil
}

// blasterLink finds node's single interface and the MAC of the peer it's
// wired to (the next hop toward the blastee — in this lab's topologies,
// the middlebox). The blaster's params file (spec §6) carries only the
// blastee's IP, never a next-hop MAC, so this is derived from the
// topology graph instead of a CLI flag.
func blasterLink(topo *topology.Topology, node string) (netio.Interface, net.HardwareAddr, error) {
	self, ok := topo.Nodes[node]
	if !ok {
		return netio.Interface{}, nil, fmt.Errorf("topology has no node %q", node)
	}
	if len(self.Interfaces) != 1 {
		return netio.Interface{}, nil, fmt.Errorf("node %q must have exactly one interface, got %d", node, len(self.Interfaces))
	}
	intf := self.Interfaces[0]

	_, peerIntf, ok := topo.PeerOf(node, intf.Name)
	if !ok {
		return netio.Interface{}, nil, fmt.Errorf("node %q interface %q has no link in the topology", node, intf.Name)
	}
	return intf, peerIntf.HWAddr, nil
}

func printMetrics(m blast.Metrics) {
	fmt.Printf("Total TX time (s): %.3f\n", m.TotalTxSeconds)
	fmt.Printf("Number of reTX: %d\n", m.TotalRetrans)
	fmt.Printf("Number of coarse TOs: %d\n", m.NumTimeouts)
	fmt.Printf("Throughput (Bps): %.2f\n", m.ThroughputBps)
	fmt.Printf("Goodput (Bps): %.2f\n", m.GoodputBps)
	fmt.Printf("Final estRTT(ms): %.2f\n", m.FinalEstRTTMs)
	fmt.Printf("Final TO(ms): %.2f\n", m.FinalTimeoutMs)
	fmt.Printf("Min RTT(ms): %.2f\n", m.MinRTTMs)
	fmt.Printf("Max RTT(ms): %.2f\n", m.MaxRTTMs)
}

// blastStatus builds the control.Status document served by the status
// server, translating Sender's accessor methods into wire-friendly types.
func blastStatus(node string, start time.Time, s *blast.Sender) control.Status {
	lhs, rhs, estRTT := s.Window()
	metrics := s.MetricsSnapshot()

	return control.Status{
		Node:          node,
		Role:          "blaster",
		UptimeSeconds: time.Since(start).Seconds(),
		Detail: control.BlastDetail{
			LHS:          lhs,
			RHS:          rhs,
			TotalRetrans: metrics.TotalRetrans,
			NumTimeouts:  metrics.NumTimeouts,
			EstRTTMs:     estRTT,
			Done:         s.ShouldStop(),
		},
	}
}

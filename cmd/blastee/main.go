// Command blastee runs the reliable receiver (spec §4.8) as an independent
// OS process: for every blast packet it receives, it answers with an ACK
// carrying the same sequence number.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coursenet/dataplane/internal/blast"
	"github.com/coursenet/dataplane/internal/cliutil"
	"github.com/coursenet/dataplane/internal/topology"
	"github.com/coursenet/dataplane/pkg/netio"
)

var (
	flagTopology string
	flagVerbose  bool
	flagBasePort int
)

var rootCmd = &cobra.Command{
	Use:   "blastee <node>",
	Short: "Run the reliable-receiver dataplane node",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlastee,
}

func init() {
	rootCmd.Flags().StringVar(&flagTopology, "topology", "topology.toml", "path to the topology file")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().IntVar(&flagBasePort, "base-port", 30000, "base loopback UDP port for the topology's port assignment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBlastee(cmd *cobra.Command, args []string) error {
	node := args[0]
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

	intf, targetMAC, blasterIP, err := blasteeLink(topo, node)
	if err != nil {
		return fmt.Errorf("blastee: %w", err)
	}

	r := blast.NewReceiver(intf, targetMAC, blasterIP, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting blastee", "node", node, "blaster_ip", blasterIP)
	if err := blast.RunReceiver(ctx, io, r); err != nil {
		return fmt.Errorf("blastee: %w", err)
	}
	logger.Info("blastee stopped")
	return nil
}

// blasteeLink finds node's single interface, the MAC of the peer it's
// wired to (the next hop back toward the blaster — in this lab's
// topologies, the middlebox), and the blaster's own IP address. Neither
// value is a flag in spec §6's CLI surface; the Python original this
// module is modeled on hardcodes them as per-topology constants, so here
// they're derived from the topology graph instead.
func blasteeLink(topo *topology.Topology, node string) (netio.Interface, net.HardwareAddr, net.IP, error) {
	self, ok := topo.Nodes[node]
	if !ok {
		return netio.Interface{}, nil, nil, fmt.Errorf("topology has no node %q", node)
	}
	if len(self.Interfaces) != 1 {
		return netio.Interface{}, nil, nil, fmt.Errorf("node %q must have exactly one interface, got %d", node, len(self.Interfaces))
	}
	intf := self.Interfaces[0]

	_, peerIntf, ok := topo.PeerOf(node, intf.Name)
	if !ok {
		return netio.Interface{}, nil, nil, fmt.Errorf("node %q interface %q has no link in the topology", node, intf.Name)
	}

	blasters := topo.NodesWithRole("blaster")
	if len(blasters) != 1 {
		return netio.Interface{}, nil, nil, fmt.Errorf("topology must have exactly one node with role \"blaster\", found %d", len(blasters))
	}
	if len(blasters[0].Interfaces) == 0 || blasters[0].Interfaces[0].IP == nil {
		return netio.Interface{}, nil, nil, fmt.Errorf("blaster node %q has no IPv4 address configured", blasters[0].Name)
	}

	return intf, peerIntf.HWAddr, blasters[0].Interfaces[0].IP, nil
}

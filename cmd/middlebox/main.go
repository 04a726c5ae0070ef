// Command middlebox runs the lossy, delaying relay (spec §4.9) as an
// independent OS process: it sits between a blaster and a blastee,
// dropping and delaying packets only in the blaster-to-blastee direction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coursenet/dataplane/internal/cliutil"
	"github.com/coursenet/dataplane/internal/middlebox"
	"github.com/coursenet/dataplane/internal/paramsfile"
	"github.com/coursenet/dataplane/internal/topology"
)

var (
	flagTopology string
	flagVerbose  bool
	flagBasePort int
)

var rootCmd = &cobra.Command{
	Use:   "middlebox <node> <params-file>",
	Short: "Run the lossy/delaying middlebox dataplane node",
	Args:  cobra.ExactArgs(2),
	RunE:  runMiddlebox,
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

func runMiddlebox(cmd *cobra.Command, args []string) error {
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

	params, err := paramsfile.LoadMiddleboxParams(paramsPath)
	if err != nil {
		return fmt.Errorf("middlebox: %w", err)
	}

	blasterPort, blasteePort, err := middleboxPorts(topo, node)
	if err != nil {
		return fmt.Errorf("middlebox: %w", err)
	}

	mb := middlebox.New(blasterPort, blasteePort, params, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting middlebox", "node", node, "drop_pct", params.DropPct)
	if err := middlebox.Run(ctx, io, mb); err != nil {
		return fmt.Errorf("middlebox: %w", err)
	}
	logger.Info("middlebox stopped")
	return nil
}

// middleboxPorts classifies node's two interfaces as the blaster-facing
// and blastee-facing ports by asking the topology which role the
// neighbor at each link has, rather than requiring that information as a
// CLI flag.
func middleboxPorts(topo *topology.Topology, node string) (blasterPort, blasteePort middlebox.Port, err error) {
	self, ok := topo.Nodes[node]
	if !ok {
		return middlebox.Port{}, middlebox.Port{}, fmt.Errorf("topology has no node %q", node)
	}
	if len(self.Interfaces) != 2 {
		return middlebox.Port{}, middlebox.Port{}, fmt.Errorf("node %q must have exactly two interfaces, got %d", node, len(self.Interfaces))
	}

	var sawBlaster, sawBlastee bool
	for _, intf := range self.Interfaces {
		peer, peerIntf, ok := topo.PeerOf(node, intf.Name)
		if !ok {
			return middlebox.Port{}, middlebox.Port{}, fmt.Errorf("node %q interface %q has no link in the topology", node, intf.Name)
		}
		port := middlebox.Port{Name: intf.Name, MAC: intf.HWAddr, NextHop: peerIntf.HWAddr}
		switch peer.Role {
		case "blaster":
			blasterPort = port
			sawBlaster = true
		case "blastee":
			blasteePort = port
			sawBlastee = true
		default:
			return middlebox.Port{}, middlebox.Port{}, fmt.Errorf("node %q interface %q links to %q with unexpected role %q", node, intf.Name, peer.Name, peer.Role)
		}
	}
	if !sawBlaster || !sawBlastee {
		return middlebox.Port{}, middlebox.Port{}, fmt.Errorf("node %q must link directly to one blaster and one blastee", node)
	}
	return blasterPort, blasteePort, nil
}

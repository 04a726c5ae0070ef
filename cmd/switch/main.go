// Command switch runs a spanning-tree-aware learning-switch node (spec
// §4.1–§4.3) as an independent OS process, exchanging frames with its
// topology peers over loopback UDP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursenet/dataplane/internal/cliutil"
	"github.com/coursenet/dataplane/internal/control"
	"github.com/coursenet/dataplane/internal/switchcore"
	"github.com/coursenet/dataplane/pkg/netio"
)

var (
	flagTopology     string
	flagVerbose      bool
	flagBasePort     int
	flagStatusSocket string
)

var rootCmd = &cobra.Command{
	Use:   "switch <node>",
	Short: "Run a learning-switch dataplane node",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
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

func runSwitch(cmd *cobra.Command, args []string) error {
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

	sw := switchcore.New(io, netio.SystemClock{}, logger, nil)

	if flagStatusSocket != "" {
		start := time.Now()
		srv := control.NewServer(flagStatusSocket, func() control.Status {
			return switchStatus(node, start, sw)
		}, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("switch: starting status server: %w", err)
		}
		defer srv.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting switch", "node", node, "topology", flagTopology)
	if err := sw.Run(ctx); err != nil {
		return fmt.Errorf("switch: %w", err)
	}
	logger.Info("switch stopped")
	return nil
}

// switchStatus builds the control.Status document served by the status
// server, translating Switch's accessor methods into wire-friendly types.
func switchStatus(node string, start time.Time, sw *switchcore.Switch) control.Status {
	rootID, amRoot, blocked := sw.STPStatus()

	learned := sw.FIBEntries()
	fib := make([]control.FIBEntry, 0, len(learned))
	for mac, port := range learned {
		fib = append(fib, control.FIBEntry{MAC: mac, Port: port})
	}

	return control.Status{
		Node:          node,
		Role:          "switch",
		UptimeSeconds: time.Since(start).Seconds(),
		Detail: control.SwitchDetail{
			FIB:     fib,
			RootID:  rootID,
			AmRoot:  amRoot,
			Blocked: blocked,
		},
	}
}

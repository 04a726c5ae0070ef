// Package cliutil holds the handful of setup steps every cmd/* binary
// performs before entering its event loop: build a logger, load the
// topology file, and bind the node's interfaces to the loopback-UDP NetIO
// backbone. Each binary is its own single-command cobra root (spec §6's
// "one binary per role"), so this plays the role a shared config-resolution
// helper plays for a single multi-subcommand binary, without requiring the
// five binaries to share a main package.
package cliutil

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/coursenet/dataplane/internal/netio/udpnet"
	"github.com/coursenet/dataplane/internal/runid"
	"github.com/coursenet/dataplane/internal/topology"
)

// NewLogger builds the text-handler logger every binary starts from,
// tagged with a fresh run ID and the node's name.
func NewLogger(verbose bool, node string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return runid.Logger(base, node)
}

// LoadTopology reads and validates the topology file at path.
func LoadTopology(path string) (*topology.Topology, error) {
	topo, err := topology.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cliutil: loading topology %s: %w", path, err)
	}
	return topo, nil
}

// DialNode resolves nodeName's interfaces against topo and binds a
// udpnet.NetIO for them, so the binary can run as an independent OS
// process against its peers' processes on loopback UDP (spec §6's NetIO
// façade, backed by loopback sockets instead of raw host interfaces). The
// concrete *udpnet.NetIO is returned, not the netio.NetIO interface, so
// callers can defer its Close.
func DialNode(topo *topology.Topology, nodeName string, basePort int, logger *slog.Logger) (*udpnet.NetIO, error) {
	node, ok := topo.Nodes[nodeName]
	if !ok {
		return nil, fmt.Errorf("cliutil: topology has no node %q", nodeName)
	}
	endpoints := udpnet.EndpointsForNode(topo, nodeName, basePort)
	io, err := udpnet.New(node.Interfaces, endpoints, logger)
	if err != nil {
		return nil, fmt.Errorf("cliutil: binding udpnet for %q: %w", nodeName, err)
	}
	return io, nil
}

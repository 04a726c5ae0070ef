package udpnet

import (
	"fmt"
	"sort"

	"github.com/coursenet/dataplane/internal/topology"
)

// AssignPorts deterministically assigns one loopback UDP port to every
// node:port endpoint referenced by topo's links, starting at basePort. The
// same topology and basePort always produce the same assignment, so every
// process in a multi-binary run can compute it independently without a
// side channel.
func AssignPorts(topo *topology.Topology, basePort int) map[string]int {
	seen := make(map[string]bool)
	var keys []string
	for _, l := range topo.Links {
		for _, k := range [2]string{l.NodeA + ":" + l.PortA, l.NodeB + ":" + l.PortB} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	assignment := make(map[string]int, len(keys))
	for i, k := range keys {
		assignment[k] = basePort + i
	}
	return assignment
}

// EndpointsForNode returns the Endpoint (local bind address, remote peer
// address) for every interface of nodeName that appears in one of topo's
// links, using the deterministic port assignment from AssignPorts.
func EndpointsForNode(topo *topology.Topology, nodeName string, basePort int) map[string]Endpoint {
	assignment := AssignPorts(topo, basePort)
	out := make(map[string]Endpoint)

	for _, l := range topo.Links {
		switch nodeName {
		case l.NodeA:
			out[l.PortA] = Endpoint{
				LocalAddr:  loopback(assignment[l.NodeA+":"+l.PortA]),
				RemoteAddr: loopback(assignment[l.NodeB+":"+l.PortB]),
			}
		case l.NodeB:
			out[l.PortB] = Endpoint{
				LocalAddr:  loopback(assignment[l.NodeB+":"+l.PortB]),
				RemoteAddr: loopback(assignment[l.NodeA+":"+l.PortA]),
			}
		}
	}
	return out
}

func loopback(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

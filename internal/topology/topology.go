// Package topology loads the TOML file describing a lab's nodes, their
// interfaces, and the links between them, the same way this module's
// ambient config layer loads any other device configuration. It has no
// opinion about which NetIO backend wires a Topology's nodes together;
// internal/netio/udpnet (for running binaries as real OS processes)
// consumes it, while internal/netiotest wires its nodes by hand.
package topology

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/coursenet/dataplane/pkg/netio"
)

// Node is one participant in a topology: a switch, router, blaster,
// blastee, or middlebox, together with the interfaces it owns.
type Node struct {
	Name       string
	Role       string
	Interfaces []netio.Interface
}

// InterfaceByName returns the interface named port on n, if any.
func (n Node) InterfaceByName(port string) (netio.Interface, bool) {
	for _, intf := range n.Interfaces {
		if intf.Name == port {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

// Link is a point-to-point wire between two named node:port endpoints.
type Link struct {
	NodeA, PortA string
	NodeB, PortB string
}

// Topology is the parsed, validated content of a topology.toml file.
type Topology struct {
	Nodes map[string]Node
	Links []Link
}

// topologyFile is the on-disk TOML shape: repeated [[node]] and [[link]]
// tables, the array-of-tables style this module uses for any repeated
// config section.
type topologyFile struct {
	Node []nodeFile `toml:"node"`
	Link []linkFile `toml:"link"`
}

type nodeFile struct {
	// Name is this node's identifier, referenced from link endpoints as
	// "name:port".
	Name string `toml:"name"`

	// Role is one of "switch", "router", "blaster", "blastee", "middlebox".
	// It is carried through uninterpreted; cmd/* binaries decide what it
	// means for their own process.
	Role string `toml:"role"`

	Interface []interfaceFile `toml:"interface"`
}

type interfaceFile struct {
	Name    string `toml:"name"`
	MAC     MAC    `toml:"mac"`
	IP      string `toml:"ip,omitempty"`
	Netmask string `toml:"netmask,omitempty"`
}

type linkFile struct {
	A string `toml:"a"`
	B string `toml:"b"`
}

// Load reads and validates a topology file at path.
func Load(path string) (*Topology, error) {
	var tf topologyFile
	if _, err := toml.DecodeFile(path, &tf); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("topology: file not found: %w", err)
		}
		return nil, fmt.Errorf("topology: reading %s: %w", path, err)
	}
	return fromFile(&tf)
}

// Parse parses topology TOML already read into memory; used by tests and
// by callers embedding a topology inline rather than on disk.
func Parse(data string) (*Topology, error) {
	var tf topologyFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("topology: decoding: %w", err)
	}
	return fromFile(&tf)
}

// NodesWithRole returns every node whose Role equals role, in no
// particular order.
func (t *Topology) NodesWithRole(role string) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

// PeerOf returns the node and interface at the other end of the link
// connecting nodeName:portName, if one exists.
func (t *Topology) PeerOf(nodeName, portName string) (Node, netio.Interface, bool) {
	for _, l := range t.Links {
		switch {
		case l.NodeA == nodeName && l.PortA == portName:
			peer := t.Nodes[l.NodeB]
			intf, _ := peer.InterfaceByName(l.PortB)
			return peer, intf, true
		case l.NodeB == nodeName && l.PortB == portName:
			peer := t.Nodes[l.NodeA]
			intf, _ := peer.InterfaceByName(l.PortA)
			return peer, intf, true
		}
	}
	return Node{}, netio.Interface{}, false
}

func fromFile(tf *topologyFile) (*Topology, error) {
	t := &Topology{Nodes: make(map[string]Node, len(tf.Node))}

	for _, nf := range tf.Node {
		if nf.Name == "" {
			return nil, errors.New("topology: node with empty name")
		}
		if _, dup := t.Nodes[nf.Name]; dup {
			return nil, fmt.Errorf("topology: duplicate node %q", nf.Name)
		}

		node := Node{Name: nf.Name, Role: nf.Role}
		for _, inf := range nf.Interface {
			intf, err := interfaceFromFile(nf.Name, inf)
			if err != nil {
				return nil, err
			}
			node.Interfaces = append(node.Interfaces, intf)
		}
		t.Nodes[nf.Name] = node
	}

	for _, lf := range tf.Link {
		link, err := linkFromFile(t, lf)
		if err != nil {
			return nil, err
		}
		t.Links = append(t.Links, link)
	}

	return t, nil
}

func interfaceFromFile(nodeName string, inf interfaceFile) (netio.Interface, error) {
	if inf.Name == "" {
		return netio.Interface{}, fmt.Errorf("topology: node %q has an interface with no name", nodeName)
	}
	if inf.MAC.IsZero() {
		return netio.Interface{}, fmt.Errorf("topology: node %q interface %q has no mac", nodeName, inf.Name)
	}

	intf := netio.Interface{Name: inf.Name, HWAddr: inf.MAC.HardwareAddr()}
	if inf.IP == "" {
		return intf, nil
	}

	ip := net.ParseIP(inf.IP)
	if ip == nil {
		return netio.Interface{}, fmt.Errorf("topology: node %q interface %q has invalid ip %q", nodeName, inf.Name, inf.IP)
	}
	mask := net.ParseIP(inf.Netmask)
	if mask == nil {
		return netio.Interface{}, fmt.Errorf("topology: node %q interface %q has invalid netmask %q", nodeName, inf.Name, inf.Netmask)
	}
	intf.IP = ip.To4()
	intf.Netmask = net.IPMask(mask.To4())
	return intf, nil
}

func linkFromFile(t *Topology, lf linkFile) (Link, error) {
	aNode, aPort, err := splitEndpoint(lf.A)
	if err != nil {
		return Link{}, err
	}
	bNode, bPort, err := splitEndpoint(lf.B)
	if err != nil {
		return Link{}, err
	}
	if err := validateEndpoint(t, aNode, aPort); err != nil {
		return Link{}, err
	}
	if err := validateEndpoint(t, bNode, bPort); err != nil {
		return Link{}, err
	}
	return Link{NodeA: aNode, PortA: aPort, NodeB: bNode, PortB: bPort}, nil
}

func splitEndpoint(s string) (node, port string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("topology: malformed link endpoint %q, want \"node:port\"", s)
	}
	return parts[0], parts[1], nil
}

func validateEndpoint(t *Topology, nodeName, portName string) error {
	node, ok := t.Nodes[nodeName]
	if !ok {
		return fmt.Errorf("topology: link references unknown node %q", nodeName)
	}
	for _, intf := range node.Interfaces {
		if intf.Name == portName {
			return nil
		}
	}
	return fmt.Errorf("topology: link references unknown interface %q on node %q", portName, nodeName)
}

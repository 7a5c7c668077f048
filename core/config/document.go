// Package config builds the engine configuration document and persists it.
package config

import (
	"fmt"
	"strings"

	"clash-launcher/internal/constants"
)

// Node is one proxy entry. Everything except the name is passed through to
// the engine untouched.
type Node map[string]any

// Name returns the node name, or "" when it is absent or not a string.
func (n Node) Name() string {
	s, _ := n["name"].(string)
	return s
}

// Type returns the protocol type of the node.
func (n Node) Type() string {
	s, _ := n["type"].(string)
	return s
}

// ProxyGroup is an entry of proxy-groups.
type ProxyGroup struct {
	Name      string   `yaml:"name" json:"name"`
	Type      string   `yaml:"type" json:"type"`
	URL       string   `yaml:"url,omitempty" json:"url,omitempty"`
	Interval  int      `yaml:"interval,omitempty" json:"interval,omitempty"`
	Tolerance int      `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Proxies   []string `yaml:"proxies" json:"proxies"`
}

// FallbackFilter decides when fallback resolvers win.
type FallbackFilter struct {
	GeoIP     bool     `yaml:"geoip"`
	GeoIPCode string   `yaml:"geoip-code"`
	IPCIDR    []string `yaml:"ipcidr"`
	Domain    []string `yaml:"domain"`
}

// DNS is the engine's resolver block.
type DNS struct {
	Enable            bool              `yaml:"enable"`
	IPv6              bool              `yaml:"ipv6"`
	PreferH3          bool              `yaml:"prefer-h3"`
	Listen            string            `yaml:"listen"`
	EnhancedMode      string            `yaml:"enhanced-mode"`
	DefaultNameserver []string          `yaml:"default-nameserver"`
	Nameserver        []string          `yaml:"nameserver"`
	Fallback          []string          `yaml:"fallback"`
	FallbackFilter    FallbackFilter    `yaml:"fallback-filter"`
	NameserverPolicy  map[string]string `yaml:"nameserver-policy"`
}

// Document is the complete engine configuration. It is always replaced as
// a whole.
type Document struct {
	MixedPort          int          `yaml:"mixed-port"`
	AllowLAN           bool         `yaml:"allow-lan"`
	BindAddress        string       `yaml:"bind-address"`
	Mode               string       `yaml:"mode"`
	LogLevel           string       `yaml:"log-level"`
	ExternalController string       `yaml:"external-controller"`
	Secret             string       `yaml:"secret"`
	DNS                DNS          `yaml:"dns"`
	Proxies            []Node       `yaml:"proxies"`
	ProxyGroups        []ProxyGroup `yaml:"proxy-groups"`
	Rules              []string     `yaml:"rules"`
}

// NodeNames lists node names in document order.
func (d *Document) NodeNames() []string {
	names := make([]string, 0, len(d.Proxies))
	for _, n := range d.Proxies {
		names = append(names, n.Name())
	}
	return names
}

// Group returns the group with the given name.
func (d *Document) Group(name string) (ProxyGroup, bool) {
	for _, g := range d.ProxyGroups {
		if g.Name == name {
			return g, true
		}
	}
	return ProxyGroup{}, false
}

// Validate checks that every node has a unique name and a type, that groups
// only reference nodes, other groups or DIRECT, and that the rules end in
// MATCH.
func (d *Document) Validate() error {
	known := map[string]bool{constants.DirectPolicy: true}
	for i, n := range d.Proxies {
		name := n.Name()
		if name == "" {
			return fmt.Errorf("%w: proxy #%d has no name", ErrInvalidDocument, i+1)
		}
		if known[name] {
			return fmt.Errorf("%w: duplicate proxy name %q", ErrInvalidDocument, name)
		}
		if n.Type() == "" {
			return fmt.Errorf("%w: proxy %q has no type", ErrInvalidDocument, name)
		}
		known[name] = true
	}
	for _, g := range d.ProxyGroups {
		known[g.Name] = true
	}
	for _, g := range d.ProxyGroups {
		for _, member := range g.Proxies {
			if !known[member] {
				return fmt.Errorf("%w: group %q references unknown %q", ErrInvalidDocument, g.Name, member)
			}
		}
	}
	if len(d.Rules) == 0 {
		return fmt.Errorf("%w: no rules", ErrInvalidDocument)
	}
	if last := d.Rules[len(d.Rules)-1]; !strings.HasPrefix(last, "MATCH,") {
		return fmt.Errorf("%w: last rule %q is not MATCH", ErrInvalidDocument, last)
	}
	return nil
}

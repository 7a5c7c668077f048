package config

import "clash-launcher/internal/constants"

// Options are the launcher-controlled top-level settings of a document.
type Options struct {
	MixedPort          int
	ExternalController string
	Secret             string
	LogLevel           string
}

// DefaultOptions returns the options used when the launcher has no settings.
func DefaultOptions() Options {
	return Options{
		MixedPort:          constants.DefaultMixedPort,
		ExternalController: constants.DefaultExternalController,
		LogLevel:           "info",
	}
}

// Build assembles a complete document around nodes. The nodes must already
// carry unique non-empty names.
func Build(nodes []Node, opts Options) *Document {
	def := DefaultOptions()
	if opts.MixedPort == 0 {
		opts.MixedPort = def.MixedPort
	}
	if opts.ExternalController == "" {
		opts.ExternalController = def.ExternalController
	}
	if opts.LogLevel == "" {
		opts.LogLevel = def.LogLevel
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name())
	}

	selector := make([]string, 0, len(names)+2)
	selector = append(selector, constants.AutoGroupName, constants.DirectPolicy)
	selector = append(selector, names...)

	return &Document{
		MixedPort:          opts.MixedPort,
		AllowLAN:           true,
		BindAddress:        "*",
		Mode:               "rule",
		LogLevel:           opts.LogLevel,
		ExternalController: opts.ExternalController,
		Secret:             opts.Secret,
		DNS:                defaultDNS(),
		Proxies:            nodes,
		ProxyGroups: []ProxyGroup{
			{
				Name:    constants.SelectorGroupName,
				Type:    "select",
				Proxies: selector,
			},
			{
				Name:      constants.AutoGroupName,
				Type:      "url-test",
				URL:       constants.DelayProbeURL,
				Interval:  300,
				Tolerance: 50,
				Proxies:   append([]string(nil), names...),
			},
		},
		Rules: buildRules(constants.SelectorGroupName),
	}
}

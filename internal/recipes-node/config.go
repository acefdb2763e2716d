package recipesnode

import (
	"recipe-swap/internal/catalog"
	"recipe-swap/internal/discovery"
)

const DefaultTopic = "recipes"

type Config struct {
	DataDir     string // peer book lives here; empty disables it
	Bind        string
	StorePath   string
	Topic       string
	MDNS        discovery.Config
	NoMDNS      bool
	Bootstrap   []string // /ip4/<ip>/tcp/<port>/p2p/<id>
	MetricsAddr string   // empty disables the metrics endpoint

	ResponseQueue int
}

func DefaultConfig() Config {
	return Config{
		Bind:          "0.0.0.0:0",
		StorePath:     catalog.DefaultPath,
		Topic:         DefaultTopic,
		MDNS:          discovery.DefaultConfig(),
		ResponseQueue: 64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Bind == "" {
		c.Bind = def.Bind
	}
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.Topic == "" {
		c.Topic = def.Topic
	}
	if c.ResponseQueue <= 0 {
		c.ResponseQueue = def.ResponseQueue
	}
	if c.MDNS.QueryInterval <= 0 {
		c.MDNS.QueryInterval = def.MDNS.QueryInterval
	}
	return c
}

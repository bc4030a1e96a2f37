// Package config loads the coordinator's node configuration, combining
// flags (the teacher's convention for its server binary) with
// environment overrides so container deployments don't need to rebuild
// a flags string.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config mirrors spec §6's configuration value: this_host, coord_hosts,
// root_path, ring_virtual_nodes, http_pool_connections,
// http_pool_maxsize. user_fetch is a Go func value, wired separately by
// the binary, not loaded here.
type Config struct {
	ThisHost            string
	CoordHosts          string
	RootPath            string
	RingVirtualNodes    int
	HTTPPoolConnections int
	HTTPPoolMaxSize     int
	HTTPTimeout         time.Duration
	SessionTimeout      time.Duration
	FetchDelay          time.Duration
}

// Load registers flags on fs, parses args, then lets a same-named
// environment variable (SFDC_<FLAG_NAME>) override the flag's value —
// the flag stays the primary interface (as in the teacher's
// cmd/server/main.go) with env vars as a deployment convenience. Only
// the six values listed on Config have an env override; -http-timeout,
// -zk-session-timeout and -demo-fetch-delay are flag-only.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.ThisHost, "this-host", "http://localhost:7001", "This node's reachable base URL")
	fs.StringVar(&cfg.CoordHosts, "coord-hosts", "127.0.0.1:2181", "Comma-separated ZooKeeper host:port list")
	fs.StringVar(&cfg.RootPath, "root-path", "/sfdc", "Root path under which nodes register")
	vnodes := fs.Int("ring-virtual-nodes", 40, "Virtual nodes per physical node")
	poolConns := fs.Int("http-pool-connections", 10, "Outbound HTTP idle connections per host")
	poolMax := fs.Int("http-pool-maxsize", 100, "Outbound HTTP max idle/total connections")
	httpTimeout := fs.Duration("http-timeout", 30*time.Second, "Outbound HTTP request timeout")
	sessionTimeout := fs.Duration("zk-session-timeout", 10*time.Second, "ZooKeeper session timeout")
	fetchDelay := fs.Duration("demo-fetch-delay", 2*time.Second, "Artificial latency of the demo fetch function")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RingVirtualNodes = *vnodes
	cfg.HTTPPoolConnections = *poolConns
	cfg.HTTPPoolMaxSize = *poolMax
	cfg.HTTPTimeout = *httpTimeout
	cfg.SessionTimeout = *sessionTimeout
	cfg.FetchDelay = *fetchDelay

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SFDC_THIS_HOST"); v != "" {
		cfg.ThisHost = v
	}
	if v := os.Getenv("SFDC_COORD_HOSTS"); v != "" {
		cfg.CoordHosts = v
	}
	if v := os.Getenv("SFDC_ROOT_PATH"); v != "" {
		cfg.RootPath = v
	}
	if v := os.Getenv("SFDC_RING_VIRTUAL_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RingVirtualNodes = n
		}
	}
	if v := os.Getenv("SFDC_HTTP_POOL_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPoolConnections = n
		}
	}
	if v := os.Getenv("SFDC_HTTP_POOL_MAXSIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPoolMaxSize = n
		}
	}
}

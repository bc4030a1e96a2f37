// cmd/sfdc-node is the entrypoint for one coordinator node.
//
// Configuration is entirely via flags/environment so a single binary can
// serve any role in the cluster.
//
// Example — three-node local cluster, each pointed at the same
// ZooKeeper ensemble so they discover each other under the same root
// path:
//
//	./sfdc-node -this-host http://localhost:7001 -coord-hosts 127.0.0.1:2181 -root-path /sfdc
//	./sfdc-node -this-host http://localhost:7002 -coord-hosts 127.0.0.1:2181 -root-path /sfdc
//	./sfdc-node -this-host http://localhost:7003 -coord-hosts 127.0.0.1:2181 -root-path /sfdc
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sfdc/internal/config"
	"sfdc/internal/core"
	"sfdc/internal/demofetch"
	"sfdc/internal/discovery"
	"sfdc/internal/ring"
	"sfdc/internal/singleflight"
	"sfdc/internal/transport"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	listenAddr, err := listenAddrFromURL(cfg.ThisHost)
	if err != nil {
		log.Fatalf("FATAL: invalid -this-host %q: %v", cfg.ThisHost, err)
	}

	// ── Ring ───────────────────────────────────────────────────────────────
	r := ring.New(cfg.RingVirtualNodes)

	// ── Coordination service / membership ────────────────────────────────────
	// Connect registers this node's ephemeral child and installs the first
	// membership snapshot into the ring before the server starts accepting
	// traffic.
	d, err := discovery.Connect(cfg.CoordHosts, cfg.SessionTimeout, cfg.RootPath, cfg.ThisHost, r.ResetWithNew)
	if err != nil {
		log.Fatalf("FATAL: discovery: %v", err)
	}
	defer d.Close()

	// ── Dispatcher, outbound HTTP pool, user fetch ────────────────────────────
	dispatch := singleflight.NewGroup()
	httpClient := transport.NewHTTPClient(transport.PoolConfig{
		Connections: cfg.HTTPPoolConnections,
		MaxSize:     cfg.HTTPPoolMaxSize,
		Timeout:     cfg.HTTPTimeout,
	})
	forwarder := transport.NewPeerClient(httpClient)

	counter := &demofetch.Counter{}
	fetch := demofetch.New(cfg.ThisHost, counter, cfg.FetchDelay)

	c := core.New(cfg.ThisHost, r, dispatch, forwarder, fetch.Do)

	// ── HTTP server ──────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(c)

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	// Listen for SIGINT/SIGTERM and give in-flight requests 15s to complete.
	go func() {
		log.Printf("node %s listening on %s (root=%s, vnodes=%d)", cfg.ThisHost, listenAddr, cfg.RootPath, cfg.RingVirtualNodes)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down node", cfg.ThisHost)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop the membership watch loop before the listener stops accepting
	// connections. This does not remove this node's ephemeral registration:
	// that disappears only when the process exits and its ZooKeeper
	// session ends.
	d.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

// listenAddrFromURL turns a reachable base URL like
// "http://localhost:7001" into the host:port net/http.Server should bind.
func listenAddrFromURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	return ":" + u.Port(), nil
}

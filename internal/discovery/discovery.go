// Package discovery watches the coordination service (ZooKeeper) for
// cluster membership and drives ring resets.
//
// Grounded on the pack's ZooKeeper-backed membership watcher
// (cluster/zookeeper.go): ensure the root path exists, register an
// ephemeral child carrying this node's URL, then loop on ChildrenW,
// re-reading the full child set and its data payloads on every fire.
package discovery

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"
)

// State is the discovery component's lifecycle, per spec §4.2:
// Uninitialised -> Registered -> Watching <-> Disconnected -> Watching | -> Closed.
type State int

const (
	Uninitialised State = iota
	Registered
	Watching
	Disconnected
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Registered:
		return "registered"
	case Watching:
		return "watching"
	case Disconnected:
		return "disconnected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn is the subset of *zk.Conn Discovery depends on, so tests can
// substitute an in-memory fake instead of a real ZooKeeper ensemble.
type conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Get(path string) ([]byte, *zk.Stat, error)
	State() zk.State
}

// OnMembersChanged is invoked with the current membership set on every
// snapshot: once immediately at construction, and again on every
// children-watch fire.
type OnMembersChanged func(nodes map[string]struct{})

var childSeq int64

// Discovery registers this node in the coordination service and keeps a
// membership callback fed with the latest child set.
type Discovery struct {
	conn     conn
	rootPath string
	selfURL  string
	onChange OnMembersChanged

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
}

// Connect dials the coordination service at servers and starts
// Discovery against it. servers is a comma-separated host:port list, the
// same shape the Python original's kazoo client and the spec's
// coord_hosts configuration value take.
func Connect(servers string, sessionTimeout time.Duration, rootPath, selfURL string, onChange OnMembersChanged) (*Discovery, error) {
	hosts := strings.Split(servers, ",")
	c, events, err := zk.Connect(hosts, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}

	if err := waitConnected(c, events, sessionTimeout); err != nil {
		c.Close()
		return nil, err
	}

	d, err := New(c, rootPath, selfURL, onChange)
	if err != nil {
		c.Close()
		return nil, err
	}
	return d, nil
}

// New builds a Discovery against an already-connected coordination
// client. Exposed separately from Connect so tests can inject a fake
// conn.
func New(c conn, rootPath, selfURL string, onChange OnMembersChanged) (*Discovery, error) {
	d := &Discovery{
		conn:     c,
		rootPath: rootPath,
		selfURL:  selfURL,
		onChange: onChange,
		state:    Uninitialised,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := d.ensurePath(d.rootPath); err != nil {
		return nil, fmt.Errorf("ensure root path: %w", err)
	}
	if err := d.registerSelf(); err != nil {
		return nil, fmt.Errorf("register self: %w", err)
	}
	d.setState(Registered)

	// Invoke the callback once immediately so the ring is usable before
	// the first external membership change (spec §4.2 step 4).
	if err := d.publish(); err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	go d.watchLoop()

	return d, nil
}

func (d *Discovery) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur += "/" + p
		exists, _, err := d.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = d.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func (d *Discovery) childPath() string {
	n := atomic.AddInt64(&childSeq, 1)
	return fmt.Sprintf("%s/node-%d-%d", strings.TrimRight(d.rootPath, "/"), os.Getpid(), n)
}

// registerSelf creates an ephemeral child carrying this node's URL as
// its data payload — automatically removed by the coordination service
// when this process's session ends.
func (d *Discovery) registerSelf() error {
	path := d.childPath()
	_, err := d.conn.Create(path, []byte(d.selfURL), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}

// publish re-lists the root's children, reads each one's data payload,
// and invokes onChange with the assembled URL set.
func (d *Discovery) publish() error {
	children, _, err := d.conn.Children(d.rootPath)
	if err != nil {
		return err
	}

	nodes := make(map[string]struct{}, len(children))
	for _, child := range children {
		data, _, err := d.conn.Get(strings.TrimRight(d.rootPath, "/") + "/" + child)
		if err != nil {
			// A child may have expired between Children() and Get();
			// skip it rather than fail the whole snapshot.
			continue
		}
		if len(data) == 0 {
			continue
		}
		nodes[string(data)] = struct{}{}
	}

	d.onChange(nodes)
	return nil
}

func (d *Discovery) watchLoop() {
	defer close(d.doneCh)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		_, _, events, err := d.conn.ChildrenW(d.rootPath)
		if err != nil {
			if d.conn.State() == zk.StateExpired {
				d.enterDegraded(err)
				return
			}
			d.setState(Disconnected)
			select {
			case <-time.After(backoff):
			case <-d.closeCh:
				return
			}
			continue
		}
		d.setState(Watching)

		select {
		case <-events:
			// Re-list the full child set and re-arm on the next loop
			// iteration; the watch only tells us something changed, not
			// what.
			if err := d.publish(); err != nil {
				log.Printf("discovery: snapshot after watch fire failed: %v", err)
			}
		case <-d.closeCh:
			return
		}
	}
}

func (d *Discovery) enterDegraded(cause error) {
	d.setState(Disconnected)
	log.Printf("discovery: coordination-service session permanently lost, ring frozen at last snapshot: %v", cause)
}

func (d *Discovery) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// State reports the current lifecycle state.
func (d *Discovery) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close stops the watch loop. It does not remove the ephemeral
// registration explicitly — that is the coordination service's job once
// the underlying session ends — but callers should also close the
// underlying *zk.Conn.
func (d *Discovery) Close() {
	d.closeOnce.Do(func() {
		close(d.closeCh)
		<-d.doneCh
		d.setState(Closed)
	})
}

func waitConnected(c *zk.Conn, events <-chan zk.Event, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		switch c.State() {
		case zk.StateConnected, zk.StateHasSession:
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s", timeout)
		}
		select {
		case <-events:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

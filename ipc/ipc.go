// Package ipc exposes the running daemon's component snapshot over a Unix
// domain socket, so "edged daemon status" and "edged daemon status --watch"
// can observe a process they didn't start. There's no RPC/control-plane
// library anywhere in the retrieval pack that fits this (the nearest is
// nomad-driver's hashicorp/go-plugin, which is a gRPC transport for driver
// execution, not a status feed) so this is plain net + encoding/json.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/statussink"
)

// Snapshot is one point-in-time view of the supervised component graph,
// serialized as a single JSON line per broadcast.
type Snapshot struct {
	Generation string            `json:"generation"`
	Overall    string            `json:"overall"`
	Components []ComponentStatus `json:"components"`
}

// ComponentStatus is one component's row in a Snapshot.
type ComponentStatus struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	StatusMessage string `json:"status_message,omitempty"`
}

// Server listens on a Unix socket and pushes a fresh Snapshot, newline
// delimited, to every connected client whenever Broadcast is called. It
// implements statussink.Sink structurally (OnTransition/OnOverallChange),
// so it can sit in the orchestrator's statussink.MultiSink directly.
type Server struct {
	path     string
	snapshot func() Snapshot

	mu      sync.Mutex
	ln      net.Listener
	clients map[net.Conn]struct{}
}

// NewServer builds a Server that serves whatever snapshot returns at the
// moment of each broadcast or new connection.
func NewServer(path string, snapshot func() Snapshot) *Server {
	return &Server{path: path, snapshot: snapshot, clients: make(map[net.Conn]struct{})}
}

// Serve removes any stale socket file, listens, and accepts connections
// until ctx is done. It blocks; run it in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.register(conn)
	}
}

func (s *Server) register(conn net.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.writeTo(conn, s.snapshot())
}

// Broadcast pushes the current snapshot to every connected client, dropping
// any that have gone away.
func (s *Server) Broadcast() {
	snap := s.snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if !s.writeToLocked(conn, snap) {
			delete(s.clients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeTo(conn net.Conn, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writeToLocked(conn, snap) {
		delete(s.clients, conn)
		conn.Close()
	}
}

func (s *Server) writeToLocked(conn net.Conn, snap Snapshot) bool {
	enc := json.NewEncoder(conn)
	return enc.Encode(snap) == nil
}

// OnTransition implements statussink.Sink: every component transition
// triggers a fresh broadcast.
func (s *Server) OnTransition(name string, from, to component.State, reason string) {
	s.Broadcast()
}

// OnOverallChange implements statussink.Sink.
func (s *Server) OnOverallChange(overall statussink.Overall) {
	s.Broadcast()
}

// Close stops accepting new connections, closes every connected client, and
// removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

// Stream dials path and delivers one Snapshot per line until ctx is
// canceled or the connection drops.
func Stream(ctx context.Context, path string) (<-chan Snapshot, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	ch := make(chan Snapshot)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var snap Snapshot
			if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
				continue
			}
			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// FetchOnce opens path, reads a single Snapshot, and disconnects. Used by
// "daemon status" for a one-shot (non---watch) check.
func FetchOnce(ctx context.Context, path string) (Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := Stream(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case snap, ok := <-stream:
		if !ok {
			return Snapshot{}, fmt.Errorf("ipc: %s closed before sending a snapshot", path)
		}
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

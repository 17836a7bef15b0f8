// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package stratum implements a line-delimited JSON server that
// authenticates external proof-of-work workers and multiplexes one
// active mining job across every logged-in peer.
package stratum

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	listenRetryInterval = 1000 * time.Millisecond
	aclRefreshInterval  = 5 * time.Second
	keepAlivePeriod     = 3 * time.Minute
)

// PeerState is the two-state lifecycle of a connected peer.
type PeerState int

const (
	StateNotLoggedIn PeerState = iota
	StateLoggedIn
)

func (s PeerState) String() string {
	if s == StateLoggedIn {
		return "LoggedIn"
	}
	return "NotLoggedIn"
}

// ServerStats is a read-only snapshot of the server's diagnostic
// counters: live connection count, total jobs broadcast, and the height
// of the most recently accepted solution.
type ServerStats struct {
	Connections        int
	JobsBroadcast      uint64
	LastSolutionHeight uint64
}

// Server distributes proof-of-work jobs to authenticated peers over a
// line-delimited JSON TCP (or TLS, if a cert/key pair is configured)
// connection, and reports back the first valid solution for each job to
// its producer exactly once.
type Server struct {
	addr      string
	tlsConfig *tls.Config
	acl       *acl

	mu                 sync.Mutex
	conns              map[string]*peerConn
	curJob             *job
	recent             *recentSolution
	jobsBroadcast      uint64
	lastSolutionHeight uint64
}

// NewServer constructs a Server listening on addr. TLS is used iff both
// certFile and keyFile are non-empty; aclPath empty disables API-key
// checking entirely.
func NewServer(addr, aclPath, certFile, keyFile string) (*Server, error) {
	var tlsConfig *tls.Config
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("stratum: load tls keypair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	} else {
		log.Warnf("stratum: no cert/key configured, TLS disabled")
	}
	return &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		acl:       newACL(aclPath),
		conns:     make(map[string]*peerConn),
	}, nil
}

// Run serves until ctx is cancelled, retrying listener creation and the
// accept loop on listenRetryInterval after any failure. It returns only
// once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.acl.startRefreshLoop(ctx.Done(), aclRefreshInterval)
		return nil
	})
	g.Go(func() error {
		s.acceptLoop(ctx)
		return nil
	})
	<-ctx.Done()
	g.Wait()
	return ctx.Err()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for ctx.Err() == nil {
		ln, err := s.listen()
		if err != nil {
			log.Errorf("stratum: listen on %s: %v; retrying in %s", s.addr, err, listenRetryInterval)
			if !sleepOrDone(ctx, listenRetryInterval) {
				return
			}
			continue
		}
		log.Infof("stratum: listening on %s (tls=%v)", ln.Addr(), s.tlsConfig != nil)

		closed := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				ln.Close()
			case <-closed:
			}
		}()
		err = s.serve(ln)
		close(closed)
		if ctx.Err() != nil {
			return
		}
		log.Errorf("stratum: accept loop on %s ended: %v; restarting in %s", s.addr, err, listenRetryInterval)
		if !sleepOrDone(ctx, listenRetryInterval) {
			return
		}
	}
}

func (s *Server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	raw, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	tcpLn, ok := raw.(*net.TCPListener)
	if !ok {
		return raw, nil
	}
	ln := net.Listener(tcpKeepAliveListener{tcpLn})
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	return ln, nil
}

// tcpKeepAliveListener sets a keep-alive period on every accepted
// connection before it is optionally wrapped in a TLS listener, so
// keep-alive applies to both plain and TLS peers.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(keepAlivePeriod)
	return tc, nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handleConn(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	pc := &peerConn{conn: conn, addr: addr, w: bufio.NewWriter(conn)}
	s.register(pc)
	defer s.unregister(pc)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warnf("stratum: %s: malformed frame: %v", addr, err)
			continue
		}
		if shutdown := s.dispatch(pc, msg); shutdown {
			return
		}
	}
}

// dispatch handles one decoded frame from pc, returning true if the
// connection should be torn down immediately afterward (login_failed).
func (s *Server) dispatch(pc *peerConn, msg message) bool {
	if pc.getState() != StateLoggedIn && msg.Method != MethodLogin {
		return false
	}
	switch msg.Method {
	case MethodLogin:
		return s.onLogin(pc, msg)
	case MethodSolution:
		s.onSolution(pc, msg)
		return false
	default:
		log.Debugf("stratum: %s: ignoring unsupported method %q", pc.addr, msg.Method)
		return false
	}
}

func (s *Server) onLogin(pc *peerConn, msg message) bool {
	if !s.acl.check(msg.APIKey) {
		log.Infof("stratum: %s: login failed", pc.addr)
		_ = pc.send(resultMsg(msg.ID, CodeLoginFailed))
		return true
	}
	pc.setState(StateLoggedIn)
	log.Debugf("stratum: %s: logged in", pc.addr)
	if j := s.currentJob(); j != nil {
		_ = pc.send(j.msg())
	}
	return false
}

func (s *Server) onSolution(pc *peerConn, msg message) {
	j := s.currentJob()
	if j == nil || j.id != msg.ID {
		log.Debugf("stratum: %s: solution for unknown or stale job %q", pc.addr, msg.ID)
		return
	}
	nonce, err := hexDecode(msg.Nonce)
	if err != nil {
		log.Warnf("stratum: %s: bad nonce: %v", pc.addr, err)
		return
	}
	output, err := hexDecode(msg.Output)
	if err != nil {
		log.Warnf("stratum: %s: bad output: %v", pc.addr, err)
		return
	}
	pow := append(append([]byte{}, nonce...), output...)

	s.mu.Lock()
	s.recent = &recentSolution{jobID: j.id, pow: pow, fromPeer: pc.addr}
	s.lastSolutionHeight = j.height
	s.mu.Unlock()

	log.Infof("stratum: %s: solution for job %s", pc.addr, j.id)
	j.deliver(pow)
}

// NewJob replaces the cached in-flight job with a fresh one and
// broadcasts it to every logged-in peer. onFound is invoked at most once
// for this job id, the first time any peer's solution is accepted for
// delivery; onCancel is accepted for interface symmetry with the node
// side but is never invoked, matching the "no active cancellation"
// decision for superseded jobs.
func (s *Server) NewJob(id string, input, pow []byte, height uint64, onFound func(pow []byte), onCancel func()) {
	j := &job{id: id, input: input, pow: pow, height: height, onFound: onFound, onCancel: onCancel}

	s.mu.Lock()
	s.curJob = j
	s.jobsBroadcast++
	peers := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		peers = append(peers, pc)
	}
	s.mu.Unlock()

	msg := j.msg()
	var dead []string
	sent := 0
	for _, pc := range peers {
		if pc.getState() != StateLoggedIn {
			continue
		}
		if err := pc.send(msg); err != nil {
			dead = append(dead, pc.addr)
			continue
		}
		sent++
	}
	for _, addr := range dead {
		s.unregisterAddr(addr)
	}
	log.Infof("stratum: new job %s sent to %d peers", id, sent)
}

// SolutionResult reports the node's final verdict on the most recent
// solution for jobID back to the peer that submitted it. A jobID that no
// longer matches the recorded solution (already superseded) is ignored.
func (s *Server) SolutionResult(jobID string, accepted bool, blockID []byte) {
	s.mu.Lock()
	rs := s.recent
	s.mu.Unlock()
	if rs == nil || rs.jobID != jobID {
		log.Debugf("stratum: solution result for stale job %q ignored", jobID)
		return
	}
	s.mu.Lock()
	pc := s.conns[rs.fromPeer]
	s.mu.Unlock()
	if pc == nil {
		return
	}
	_ = pc.send(solutionResultMsg(jobID, accepted, blockID))
}

// Stats returns a snapshot of the server's diagnostic counters.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerStats{
		Connections:        len(s.conns),
		JobsBroadcast:      s.jobsBroadcast,
		LastSolutionHeight: s.lastSolutionHeight,
	}
}

func (s *Server) currentJob() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curJob
}

func (s *Server) register(pc *peerConn) {
	s.mu.Lock()
	s.conns[pc.addr] = pc
	s.mu.Unlock()
	log.Debugf("stratum: +peer %s", pc.addr)
}

func (s *Server) unregister(pc *peerConn) {
	s.mu.Lock()
	delete(s.conns, pc.addr)
	s.mu.Unlock()
	pc.conn.Close()
	log.Debugf("stratum: -peer %s", pc.addr)
}

func (s *Server) unregisterAddr(addr string) {
	s.mu.Lock()
	pc := s.conns[addr]
	delete(s.conns, addr)
	s.mu.Unlock()
	if pc != nil {
		pc.conn.Close()
	}
}

// peerConn is one accepted connection: its write side needs a mutex since
// NewJob's broadcast and this peer's own reply path can both write
// concurrently.
type peerConn struct {
	conn net.Conn
	addr string

	mu    sync.Mutex
	state PeerState
	w     *bufio.Writer
}

func (p *peerConn) send(msg message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(b); err != nil {
		return err
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return err
	}
	return p.w.Flush()
}

func (p *peerConn) setState(s PeerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *peerConn) getState() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

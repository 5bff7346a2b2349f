// Package localdns runs a small authoritative DNS server that points the
// domains a user wants intercepted at this proxy's own listen address,
// forwarding everything else to a real upstream resolver. It lets a client
// be pointed at the proxy by DNS alone, without per-host /etc/hosts edits.
package localdns

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/fnzv/mitmproxy/internal/logging"
)

const (
	// DefaultPort is the standard DNS port.
	DefaultPort = 53

	// answerTTL is the TTL attached to every record this server answers.
	answerTTL = 60

	// DefaultUpstream is used for queries outside the intercepted domain set.
	DefaultUpstream = "8.8.8.8:53"
)

// Config describes which domains localdns should answer for and where to
// forward everything else.
type Config struct {
	// Addr is the address to listen on, e.g. "127.0.0.1:53".
	Addr string

	// Domains is the set of zones (and their subdomains) resolved to
	// ProxyIP instead of forwarded upstream.
	Domains []string

	// ProxyIP is the address returned for intercepted domains — normally
	// the proxy's own listen address.
	ProxyIP net.IP

	// Upstream is the resolver queries for non-intercepted names are
	// forwarded to.
	Upstream string
}

// DefaultConfig returns the out-of-the-box configuration: intercept
// "localhost" only, answer with 127.0.0.1, forward everything else to
// Google's public resolver.
func DefaultConfig() Config {
	return Config{
		Addr:     fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		Domains:  []string{"localhost"},
		ProxyIP:  net.ParseIP("127.0.0.1"),
		Upstream: DefaultUpstream,
	}
}

// Server answers authoritatively for Config.Domains and forwards every
// other query to Config.Upstream.
type Server struct {
	addr     string
	domains  []string
	proxyIP  net.IP
	upstream string

	forwarder *mdns.Client

	mu      sync.RWMutex
	running bool
	udp     *mdns.Server
	tcp     *mdns.Server
}

// New builds a Server from cfg, filling in any zero-valued fields from
// DefaultConfig.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = def.Domains
	}
	if cfg.ProxyIP == nil {
		cfg.ProxyIP = def.ProxyIP
	}
	if cfg.Upstream == "" {
		cfg.Upstream = def.Upstream
	}

	return &Server{
		addr:      cfg.Addr,
		domains:   cfg.Domains,
		proxyIP:   cfg.ProxyIP,
		upstream:  cfg.Upstream,
		forwarder: &mdns.Client{Timeout: 5 * time.Second},
	}
}

// Start binds the configured address over both UDP and TCP and begins
// answering queries. It blocks briefly to surface an immediate bind error,
// then returns with both listeners running in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("localdns: already running")
	}

	handler := mdns.HandlerFunc(s.answer)
	s.udp = &mdns.Server{Addr: s.addr, Net: "udp", Handler: handler}
	s.tcp = &mdns.Server{Addr: s.addr, Net: "tcp", Handler: handler}

	errCh := make(chan error, 2)
	go func() {
		logging.Info("localdns: serving UDP", "addr", s.addr)
		errCh <- s.udp.ListenAndServe()
	}()
	go func() {
		logging.Info("localdns: serving TCP", "addr", s.addr)
		errCh <- s.tcp.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("localdns: bind %s: %w", s.addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	s.running = true
	return nil
}

// Stop shuts down both listeners.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error
	if err := s.udp.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("udp: %w", err))
	}
	if err := s.tcp.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("tcp: %w", err))
	}
	s.running = false

	if len(errs) > 0 {
		return fmt.Errorf("localdns: shutdown: %v", errs)
	}
	logging.Info("localdns: stopped")
	return nil
}

// Running reports whether the server is currently accepting queries.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// UpdateDomains swaps the set of intercepted zones at runtime, e.g. on a
// configuration reload. The listen address can't be changed without a
// restart.
func (s *Server) UpdateDomains(domains []string, upstream string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(domains) > 0 {
		s.domains = domains
		logging.Info("localdns: domains updated", "domains", domains)
	}
	if upstream != "" && upstream != s.upstream {
		s.upstream = upstream
		logging.Info("localdns: upstream updated", "upstream", upstream)
	}
}

// answer is the mdns.Handler entry point: each question is either resolved
// to the proxy's address or forwarded upstream verbatim.
func (s *Server) answer(w mdns.ResponseWriter, req *mdns.Msg) {
	reply := new(mdns.Msg)
	reply.SetReply(req)
	reply.Authoritative = true

	for _, q := range req.Question {
		logging.Debug("localdns: query", "name", q.Name, "type", mdns.TypeToString[q.Qtype])

		if s.intercepts(q.Name) {
			s.resolveLocally(reply, q)
		} else {
			s.forward(reply, req)
			break // a forwarded response replaces the whole message
		}
	}

	if err := w.WriteMsg(reply); err != nil {
		logging.Error("localdns: write response failed", "error", err)
	}
}

// intercepts reports whether name falls under one of the configured zones
// (exact match or any subdomain).
func (s *Server) intercepts(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))

	s.mu.RLock()
	domains := s.domains
	s.mu.RUnlock()

	for _, zone := range domains {
		zone = strings.ToLower(zone)
		if name == zone || strings.HasSuffix(name, "."+zone) {
			return true
		}
	}
	return false
}

// resolveLocally answers an A question for an intercepted zone with the
// proxy's own address when that address is IPv4, and an AAAA question with
// ::1 only when the proxy's address is 127.0.0.1; every other case gets an
// empty, successful answer.
func (s *Server) resolveLocally(reply *mdns.Msg, q mdns.Question) {
	header := mdns.RR_Header{Name: q.Name, Class: mdns.ClassINET, Ttl: answerTTL}

	switch q.Qtype {
	case mdns.TypeA:
		if ip4 := s.proxyIP.To4(); ip4 != nil {
			header.Rrtype = mdns.TypeA
			reply.Answer = append(reply.Answer, &mdns.A{Hdr: header, A: ip4})
		}
	case mdns.TypeAAAA:
		if s.proxyIP.Equal(net.ParseIP("127.0.0.1")) {
			header.Rrtype = mdns.TypeAAAA
			reply.Answer = append(reply.Answer, &mdns.AAAA{Hdr: header, AAAA: net.ParseIP("::1")})
		}
	default:
		reply.Rcode = mdns.RcodeSuccess
	}
}

// forward relays a non-intercepted query to the configured upstream
// resolver and copies its answer back verbatim.
func (s *Server) forward(reply *mdns.Msg, req *mdns.Msg) {
	s.mu.RLock()
	upstream := s.upstream
	s.mu.RUnlock()

	resp, _, err := s.forwarder.Exchange(req, upstream)
	if err != nil {
		logging.Error("localdns: upstream query failed", "error", err, "upstream", upstream)
		reply.Rcode = mdns.RcodeServerFailure
		return
	}

	reply.Answer = resp.Answer
	reply.Ns = resp.Ns
	reply.Extra = resp.Extra
	reply.Rcode = resp.Rcode
}

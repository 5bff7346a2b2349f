package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fnzv/mitmproxy/internal/ca"
	"github.com/fnzv/mitmproxy/internal/certstore"
	"github.com/fnzv/mitmproxy/internal/config"
	"github.com/fnzv/mitmproxy/internal/layerctx"
	"github.com/fnzv/mitmproxy/internal/localdns"
	"github.com/fnzv/mitmproxy/internal/logging"
	"github.com/fnzv/mitmproxy/internal/orchestrator"
	"github.com/fnzv/mitmproxy/internal/passthrough"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TLS interception proxy in the foreground",
	Long: `serve accepts connections on listen.addr, runs the TLS
orchestrator over each one (terminating and re-establishing TLS per
the tls settings, forging certificates from the local CA), then hands the
result to a plain byte-shuttling tunnel. It runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Setup(logging.ParseLevel(cfg.Logging.Level), os.Stderr)

	if cfg.TLS.ClientTLS {
		if !ca.Exists() {
			return fmt.Errorf("no CA found: run 'mitmproxy ca generate' first")
		}
	}

	store, err := certstore.New()
	if err != nil {
		return fmt.Errorf("failed to initialize certificate store: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Listen.Addr, err)
	}
	defer listener.Close()
	logging.Info("proxy listening", "addr", cfg.Listen.Addr, "upstream", cfg.Listen.Upstream)

	var dnsServer *localdns.Server
	if cfg.DNS.Enabled {
		dnsCfg := localdns.DefaultConfig()
		dnsCfg.Addr = cfg.DNS.Listen
		dnsCfg.Domains = cfg.DNS.Domains
		dnsCfg.Upstream = cfg.DNS.Upstream
		dnsServer = localdns.New(dnsCfg)
		if err := dnsServer.Start(); err != nil {
			return fmt.Errorf("failed to start DNS server: %w", err)
		}
		defer dnsServer.Stop()
		logging.Info("local DNS server started", "addr", cfg.DNS.Listen, "domains", cfg.DNS.Domains)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		acceptLoop(ctx, listener, cfg, store)
	}()

	<-ctx.Done()
	logging.Info("shutting down")
	listener.Close()
	<-acceptDone
	return nil
}

// acceptLoop accepts client connections until ctx is cancelled, handing each
// one to its own Orchestrator followed by a passthrough.Tunnel.
func acceptLoop(ctx context.Context, listener net.Listener, cfg *config.Config, store *certstore.Store) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logging.Error("accept failed", "error", err)
				return
			}
		}
		go handleConn(conn, cfg, store)
	}
}

func handleConn(conn net.Conn, cfg *config.Config, store *certstore.Store) {
	defer conn.Close()

	server := orchestrator.ServerAddress{Addr: cfg.Listen.Upstream}
	if host, _, err := net.SplitHostPort(cfg.Listen.Upstream); err == nil {
		server.Host = host
	} else {
		server.Host = cfg.Listen.Upstream
	}

	o := orchestrator.New(cfg, store, conn, server)

	lctx := &layerctx.Context{
		Client: conn,
		NextLayer: func(current layerctx.Layer) (layerctx.Layer, error) {
			return passthrough.Tunnel{}, nil
		},
	}

	if err := o.Run(lctx); err != nil {
		logging.Error("connection failed", "error", err, "remote", conn.RemoteAddr())
	}
}

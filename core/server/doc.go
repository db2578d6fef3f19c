// Package server provides HTTP server configuration and lifecycle management
// with graceful shutdown, configurable timeouts and limits, TLS presets, and
// an AutoCertServer for automatic HTTPS. It wraps the standard http.Server.
//
// # Features
//
//   - Graceful shutdown bounded by a configurable timeout (30s by default)
//   - Configurable read, write and idle timeouts and a header size limit
//   - TLS configuration presets and an option-based TLS builder
//   - Automatic HTTPS through AutoCertServer and a pluggable CertificateManager
//   - Environment-driven configuration through Config and NewFromConfig
//   - errgroup-compatible Run
//
// # Basic Usage
//
// Create a server for an address and start it with a handler. Start blocks
// until the context is cancelled or the server fails; it does not shut the
// server down by itself, which Stop does:
//
//	import "github.com/dmitrymomot/credvault/core/server"
//
//	srv := server.New(":8080",
//		server.WithReadTimeout(30*time.Second),
//		server.WithWriteTimeout(30*time.Second),
//	)
//
//	if err := srv.Start(ctx, router); err != nil && !errors.Is(err, context.Canceled) {
//		log.Fatal("Server failed:", err)
//	}
//	if err := srv.Stop(); err != nil {
//		log.Println("Server shutdown failed:", err)
//	}
//
// # Server Configuration
//
// Configure the server with options:
//
//	srv := server.New("0.0.0.0:8080",
//		server.WithReadTimeout(15*time.Second),
//		server.WithWriteTimeout(15*time.Second),
//		server.WithIdleTimeout(60*time.Second),
//		server.WithMaxHeaderBytes(1<<20), // 1MB
//		server.WithShutdownTimeout(30*time.Second),
//		server.WithLogger(logger),
//	)
//
// Or build it from a Config, whose fields load from SERVER_* environment
// variables; options passed to NewFromConfig override the config values:
//
//	cfg := server.DefaultConfig()
//	cfg.Addr = ":9090"
//	srv, err := server.NewFromConfig(cfg, server.WithLogger(logger))
//
// # TLS Configuration
//
// Enable HTTPS by passing a *tls.Config with certificates to WithTLS. The
// presets (DefaultTLSConfig, ModernTLSConfig, IntermediateTLSConfig,
// StrictTLSConfig) cover common policies, and NewTLSConfig builds one from
// options, failing if a certificate cannot be loaded:
//
//	tlsConfig, err := server.NewTLSConfig(
//		server.WithTLSCertificate("cert.pem", "key.pem"),
//		server.WithTLSMinVersion(tls.VersionTLS13),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	srv := server.New(":8443", server.WithTLS(tlsConfig))
//
// With a Config, setting both TLSCertFile and TLSKeyFile makes NewFromConfig
// load the certificate pair.
//
// # Graceful Shutdown
//
// Run returns a function for an errgroup. When the context is cancelled it
// calls Stop, which waits for in-flight requests up to the shutdown timeout:
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	srv := server.New(":8080", server.WithShutdownTimeout(30*time.Second))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, router))
//	if err := g.Wait(); err != nil {
//		log.Fatal(err)
//	}
//
// The package-level Run(ctx, addr, handler) starts a server with default
// settings and returns when the context is cancelled, without calling Stop.
//
// # Automatic HTTPS
//
// AutoCertServer runs an HTTP server that answers ACME challenges and
// redirects to HTTPS, next to an HTTPS server whose certificates come from a
// CertificateManager. Domains that are still provisioning, failed or unknown
// get status pages:
//
//	acs, err := server.NewAutoCertServer(
//		server.WithCertManager(certManager),
//		server.WithDomainStore(domainStore),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := acs.Run(ctx, router); err != nil {
//		log.Fatal(err)
//	}
//
// Routing, middleware and health endpoints are the handler's concern; the
// package serves whatever http.Handler it is given.
//
// # Best Practices
//
//   - Set appropriate timeouts for your use case
//   - Use TLS for production deployments
//   - Implement proper graceful shutdown
//   - Add health check endpoints for monitoring
//   - Use middleware for cross-cutting concerns
//   - Configure limits to prevent resource exhaustion
//   - Log server events for debugging and monitoring
//   - Handle signals for clean shutdown
//   - Test server configuration under load
//   - Monitor server metrics in production
package server

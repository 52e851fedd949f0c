package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/zhaochy1990/auth/internal/config"
)

// buildTLSListener uses certmagic to obtain a Let's Encrypt certificate and
// returns a TLS net.Listener on port 443. It also starts an HTTP-01 challenge
// responder + HTTP→HTTPS redirect on port 80 in a background goroutine.
func buildTLSListener(ctx context.Context, cfg *config.Config, logger *slog.Logger) (net.Listener, error) {
	certDir := cfg.Server.TLSCertDir
	if certDir == "" {
		home, _ := os.UserHomeDir()
		certDir = filepath.Join(home, ".authd", "certs")
	}

	if cfg.Server.TLSEmail != "" {
		certmagic.DefaultACME.Email = cfg.Server.TLSEmail
	}

	magic := certmagic.NewDefault()
	magic.Storage = &certmagic.FileStorage{Path: certDir}

	logger.Info("obtaining TLS certificate", "domain", cfg.Server.TLSDomain)
	if err := magic.ManageSync(ctx, []string{cfg.Server.TLSDomain}); err != nil {
		return nil, fmt.Errorf("obtaining TLS certificate for %s: %w", cfg.Server.TLSDomain, err)
	}

	tlsCfg := magic.TLSConfig()

	// Port 80: handle HTTP-01 ACME challenges and redirect everything else to https.
	go func() {
		domain := cfg.Server.TLSDomain
		handler := certmagic.DefaultACME.HTTPChallengeHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.RequestURI
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		}))
		srv := &http.Server{
			Addr:              ":80",
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			logger.Warn("HTTP redirect listener error", "error", err)
		}
	}()

	ln, err := tls.Listen("tcp", fmt.Sprintf("%s:443", cfg.Server.Host), tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("TLS listen on :443: %w", err)
	}
	return ln, nil
}

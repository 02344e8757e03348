package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"tinystore/internal/s3"
	"tinystore/internal/store"
)

func Run(ctx context.Context) error {

	listenHTTP := flag.String("listen", "9000", "HTTP listen address")
	dataDir := flag.String("data-dir", "./data", "directory to store object data")
	region := flag.String("region", "us-east-1", "region reported by GetBucketLocation")
	accessKey := flag.String("access-key", "minioadmin", "access key ID clients must present")
	secretKey := flag.String("secret-key", "minioadmin", "secret access key clients must present")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file (enables HTTPS)")
	tlsKey := flag.String("tls-key", "", "TLS private key file")
	listenHTTPS := flag.Int("listen-tls", 8443, "HTTPS listen port")

	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	// Ensure data directory is absolute for easier debugging.
	absDataDir, err := filepath.Abs(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	st, err := store.NewStore(ctx, store.Config{DataDir: absDataDir})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	defer st.Close()

	server := s3.NewServer(st, s3.Config{
		Region:          *region,
		AccessKeyID:     *accessKey,
		SecretAccessKey: *secretKey,
	})
	router := server.Handler()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", *listenHTTP),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			ClientAuth: tls.RequestClientCert,
			MinVersion: tls.VersionTLS12,
		},
		Addr:              fmt.Sprintf(":%d", *listenHTTPS),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return httpsServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	eg.Go(func() error {
		if *tlsCert == "" || *tlsKey == "" {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting TinyStore HTTPS server", "port", *listenHTTPS)
		err := httpsServer.ListenAndServeTLS(*tlsCert, *tlsKey)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting TinyStore HTTP server", "port", *listenHTTP)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("TinyStore started", "data_dir", absDataDir)
	return eg.Wait()

}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("TinyStore exited with error", "error", err)
	}
}

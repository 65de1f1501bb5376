package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	shortenergrpc "github.com/atinyakov/shortlinks/internal/app/server/grpc"
	"github.com/atinyakov/shortlinks/internal/config"
	"github.com/atinyakov/shortlinks/internal/logger"
)

var buildVersion string
var buildDate string
var buildCommit string

const shutdownTimeout = 10 * time.Second

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func main() {
	fmt.Printf("Build version: %s\n", orNA(buildVersion))
	fmt.Printf("Build date: %s\n", orNA(buildDate))
	fmt.Printf("Build commit: %s\n", orNA(buildCommit))

	options, err := config.Parse()
	if err != nil {
		panic(err)
	}

	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		panic(err)
	}
	defer log.Sync()

	undo, err := maxprocs.Set(maxprocs.Logger(log.Log.Sugar().Infof))
	defer undo()
	if err != nil {
		log.Log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, options, log.Log); err != nil {
		log.Log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, log *zap.Logger) error {
	a, err := newApp(ctx, options, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              options.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var grpcServer *shortenergrpc.Server
	if options.GRPCAddress != "" {
		grpcServer = shortenergrpc.New(options.GRPCAddress, log, a.service, a.auth)
	}

	g, gctx := errgroup.WithContext(ctx)

	if options.EnablePprof {
		pprofServer := &http.Server{Addr: "localhost:6060", Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("Starting pprof server", zap.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return pprofServer.Close()
		})
	}

	g.Go(func() error {
		var err error
		if options.EnableHTTPS {
			manager := &autocert.Manager{
				Cache:      autocert.DirCache("cache-dir"),
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(hostOf(options.ResultHostname)),
			}
			httpServer.Addr = ":443"
			httpServer.TLSConfig = manager.TLSConfig()
			log.Info("Server is running with TLS", zap.String("host", hostOf(options.ResultHostname)))
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Info("Server is running", zap.String("hostname", options.Port))
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		err := httpServer.Shutdown(shutdownCtx)

		return errors.Join(err, a.close(shutdownCtx))
	})

	return g.Wait()
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	if host, _, err := net.SplitHostPort(u.Host); err == nil {
		return host
	}
	return u.Host
}

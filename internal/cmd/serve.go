package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lprintgolang/internal/config"
	"lprintgolang/internal/dnssd"
	"lprintgolang/internal/driver"
	"lprintgolang/internal/logging"
	"lprintgolang/internal/server"
	"lprintgolang/internal/spool"
	"lprintgolang/internal/store"
	"lprintgolang/internal/system"
)

const (
	shutdownTimeout = 10 * time.Second
	maxRequestSize  = 512 << 20
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the printer application",
	Long: `Run the IPP server, restoring saved printers and creating the ones
declared in the config file.

Examples:
  lprintd serve
  lprintd serve --listen :8631 -c /etc/lprint.yaml
  LPRINT_DNSSD_ENABLED=false lprintd serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "listen address (host:port)")
	serveCmd.Flags().String("data-dir", "", "directory for the database, spool and logs")
	serveCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig merges flags that were set on cmd over the file and
// environment settings.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()
	for key, flag := range map[string]string{
		"listen":    "listen",
		"data_dir":  "data-dir",
		"log_level": "log-level",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return config.Config{}, err
			}
		}
	}
	return config.Load(v, cfgFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.Configure(logging.Config{
		ErrorLog:    cfg.ErrorLogPath,
		AccessLog:   cfg.AccessLogPath,
		PageLog:     cfg.PageLogPath,
		MaxSize:     cfg.MaxLogBytes(),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AccessLevel: cfg.AccessLogLevel,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logging.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	sp := spool.Spool{Dir: cfg.SpoolDir}
	if err := sp.Ensure(); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var state store.SystemState
	err = st.WithTx(ctx, true, func(tx *sql.Tx) error {
		var err error
		state, err = st.LoadSystemState(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("load system state: %w", err)
	}

	port, _ := cfg.Port()
	host := hostName(cfg.ServerName)

	sysUUID := state.UUID
	if cfg.UUID != "" {
		sysUUID = cfg.UUID
	}
	opts := []system.Option{
		system.WithUUID(sysUUID),
		system.WithHostname(host, port),
		system.WithDirectory(cfg.SpoolDir),
		system.WithDriverCallback(driver.PWG),
		system.WithSpoolCapacity(spool.Capacity),
		system.WithNextPrinterID(state.NextPrinterID),
		system.WithLogger(log),
	}

	var adv *dnssd.Advertiser
	if cfg.DNSSD.Enabled && len(cfg.DNSSD.Subtypes) > 0 {
		advHost := cfg.DNSSD.HostName
		if advHost == "" {
			advHost = host
		}
		adv = dnssd.New(dnssd.Config{
			HostName:     advHost,
			Port:         port,
			ComputerName: cfg.DNSSD.ComputerName,
			Logger:       log.Named("dnssd"),
		}, cfg.DNSSD.Subtypes...)
		if err := adv.Start(); err != nil {
			log.Warn("dns-sd responder unavailable", zap.Error(err))
		}
		defer adv.Close()
		opts = append(opts, system.WithAdvertiser(adv, cfg.DNSSD.Subtypes...))
	}

	sys := system.New(opts...)
	if state.DefaultPrinterID > 0 {
		sys.SetDefaultPrinterID(state.DefaultPrinterID)
	}

	srv := &server.Server{
		System:         sys,
		Spool:          sp,
		Store:          st,
		JobHistory:     cfg.JobHistory,
		MaxRequestSize: maxRequestSize,
		Log:            log,
	}
	declared := make([]server.DeclaredPrinter, 0, len(cfg.Printers))
	for _, p := range cfg.Printers {
		declared = append(declared, server.DeclaredPrinter{
			Name:       p.Name,
			DriverName: p.Driver,
			DeviceURI:  p.DeviceURI,
			Location:   p.Location,
		})
	}
	if err := srv.Restore(ctx, declared, cfg.DefaultPrinter); err != nil {
		return fmt.Errorf("restore printers: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("lprintd listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("uuid", sys.UUID()),
			zap.Int("printers", sys.Len()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func hostName(configured string) string {
	if h := strings.TrimSpace(configured); h != "" {
		return h
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

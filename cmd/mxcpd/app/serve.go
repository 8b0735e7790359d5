package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/raw-labs/mxcp/internal/admin"
	"github.com/raw-labs/mxcp/internal/audit"
	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/executor"
	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/mcpserver"
	"github.com/raw-labs/mxcp/internal/orchestrator"
	"github.com/raw-labs/mxcp/internal/registry"
	"github.com/raw-labs/mxcp/internal/reload"
	"github.com/raw-labs/mxcp/internal/runner"
	"github.com/raw-labs/mxcp/internal/siteconfig"
	"github.com/raw-labs/mxcp/internal/sqlsession"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	defaultAdminAddress    = "127.0.0.1:8090"
	defaultRetentionSweep  = 24 * time.Hour
	defaultHostWorkers     = 8
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load endpoints and serve them over MCP",
		Long: `serve loads every endpoint under --project-dir, opens the SQL session
for the active profile, and serves tools/resources/prompts over MCP on
stdio. An admin control surface (health/status/reload) is bound locally
when --admin-enabled is set.`,
		RunE: runServe,
	}
	cmd.Flags().String("project-dir", ".", "Root directory to discover endpoint YAML under")
	cmd.Flags().String("site-config", "mxcp-site.yml", "Path to the site config document (spec §6.3)")
	cmd.Flags().Bool("admin-enabled", false, "Bind the local admin control surface (spec §4.10)")
	cmd.Flags().String("admin-address", defaultAdminAddress, "Loopback address the admin surface binds to")
	cmd.Flags().String("audit-log-file", "", "Audit log destination; empty means stdout")

	for _, name := range []string{"project-dir", "site-config", "admin-enabled", "admin-address", "audit-log-file"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			logger.Errorf("binding --%s flag: %v", name, err)
		}
	}
	return cmd
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if viper.GetBool("debug") {
		devLogger, err := zap.NewDevelopment()
		if err == nil {
			logger.SetLogger(devLogger.Sugar())
		}
	}

	projectDir := viper.GetString("project-dir")
	sitePath := viper.GetString("site-config")

	doc, err := siteconfig.Load(sitePath)
	if err != nil {
		return fmt.Errorf("loading site config: %w", err)
	}
	profile := viper.GetString("profile")
	if profile == "" {
		profile = doc.Profile
	}
	doc.Profile = profile

	cfgProvider := &siteconfig.Provider{
		Path:       sitePath,
		Resolver:   siteconfig.EnvResolver{},
		Extensions: doc.Extensions,
	}
	sessionCfg, err := cfgProvider.ResolveSessionConfig(ctx)
	if err != nil {
		return fmt.Errorf("resolving initial session config: %w", err)
	}
	if viper.GetBool("read-only") {
		sessionCfg.ReadOnly = true
	}
	if dbPath := viper.GetString("database-path"); dbPath != "" {
		sessionCfg.DatabasePath = dbPath
	}

	session, err := sqlsession.Open(ctx, sessionCfg)
	if err != nil {
		return fmt.Errorf("opening sql session: %w", err)
	}

	hostTable := endpoint.NewStaticHostTable()
	loader := endpoint.NewLoader(projectDir, hostTable)
	loadResult, err := endpoint.LoadAndCompile(loader)
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}
	for _, lerr := range loadResult.Errors {
		logger.Warnf("endpoint load error: %s", lerr.Error())
	}
	logger.Infof("loaded %d endpoint(s), %d error(s)", len(loadResult.Loaded), len(loadResult.Errors))

	reg := registry.New(registry.NewSnapshot(loadResult.Loaded, time.Now()))

	reloadCtrl := reload.New(cfgProvider, loader, reg, session)
	reloadCtrl.RefreshEndpoints = true

	auditCfg := audit.DefaultConfig()
	if f := viper.GetString("audit-log-file"); f != "" {
		auditCfg.LogFile = f
	}
	auditWriter, err := audit.NewWriter(auditCfg)
	if err != nil {
		return fmt.Errorf("opening audit writer: %w", err)
	}
	defer auditWriter.Close()

	dispatcher := &runner.Dispatcher{
		SQL:  runner.SQLRunner{},
		Host: runner.NewHostRunner(hostTable, configMap(doc), defaultHostWorkers),
	}
	exec := executor.New(dispatcher, auditWriter)
	orch := orchestrator.New(reg, reloadCtrl, exec)

	stopSweep := startRetentionSweep(ctx, auditCfg)
	defer stopSweep()

	var adminServer *http.Server
	if viper.GetBool("admin-enabled") {
		adminServer = startAdmin(reg, reloadCtrl, doc, profile)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range signalCh {
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, triggering reload")
				if err := reloadCtrl.Trigger(ctx); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
				continue
			}
			logger.Infof("received %s, shutting down", sig)
			cancel()
			return
		}
	}()

	adapter := mcpserver.New(doc.Project, "1.0.0", orch, reg, nil)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- mcpserver.ServeStdio(adapter)
	}()

	select {
	case err := <-serveErrCh:
		if err != nil {
			logger.Errorf("mcp transport exited: %v", err)
		}
	case <-ctx.Done():
	}

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutting down admin surface: %v", err)
		}
	}
	if err := session.Close(); err != nil {
		logger.Errorf("closing sql session: %v", err)
	}
	return nil
}

func configMap(doc *siteconfig.Document) map[string]any {
	return map[string]any{
		"project":    doc.Project,
		"profile":    doc.Profile,
		"extensions": doc.Extensions,
	}
}

func startAdmin(reg *registry.Registry, reloadCtrl *reload.Controller, doc *siteconfig.Document, profile string) *http.Server {
	mode := admin.ModeReadWrite
	if doc.ActiveProfile().ReadOnly {
		mode = admin.ModeReadOnly
	}
	srv := &admin.Server{
		Registry:    reg,
		Reload:      reloadCtrl,
		Profile:     profile,
		ProjectName: doc.Project,
		Mode:        mode,
		StartedAt:   time.Now(),
		Features:    map[string]bool{"sql_tools": doc.SQLTools.Enabled},
	}
	address := viper.GetString("admin-address")
	httpServer := &http.Server{Addr: address, Handler: srv.Router()}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Errorf("admin surface: failed to bind %s: %v", address, err)
		return nil
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("admin surface exited: %v", err)
		}
	}()
	logger.Infof("admin surface listening on %s", address)
	return httpServer
}

// startRetentionSweep runs audit.RetentionSweep every defaultRetentionSweep
// interval (spec §4.8 "a periodic sweep, default 24h interval, also
// invokable on demand"); the admin surface's own on-demand hook is left as
// a documented extension point rather than a fifth route, since the spec's
// normative admin routes (§4.10, §6.2) list only health/status/reload/
// config.
func startRetentionSweep(ctx context.Context, cfg *audit.Config) func() {
	if cfg.RetentionDays <= 0 || cfg.LogFile == "" {
		return func() {}
	}
	ticker := time.NewTicker(defaultRetentionSweep)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweep := &audit.RetentionSweep{LogFile: cfg.LogFile, RetentionDays: cfg.RetentionDays}
		for {
			select {
			case <-ticker.C:
				if removed, err := sweep.Run(time.Now()); err != nil {
					logger.Errorf("audit retention sweep failed: %v", err)
				} else if removed > 0 {
					logger.Infof("audit retention sweep removed %d record(s)", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		<-done
	}
}

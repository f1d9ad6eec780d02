package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/webmux"
	"pkt.systems/webmux/internal/appconfig"
	"pkt.systems/webmux/internal/browser"
	"pkt.systems/webmux/wire"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	var windowID string
	var profile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a workspace window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if windowID != "" {
				cfg.Window = windowID
			}
			if profile != "" {
				cfg.Profile = profile
			}
			wsCfg, err := cfg.Workspace()
			if err != nil {
				return err
			}

			dialer := wire.NewDialer(cfg.Backend.SocketURL, logger)
			var deps webmux.WorkspaceDeps
			deps.Dialer = dialer
			deps.StateDir = cfg.StateDir
			deps.Logger = logger
			if cfg.Backend.ControlURL != "" {
				deps.Control = wire.NewControl(cfg.Backend.ControlURL, logger)
			}
			opener := browser.NewOpener(cfg.Browser.BaseURL, cfg.Browser.Headless, logger)
			defer func() { _ = opener.Close() }()
			deps.Opener = opener

			workspace, err := webmux.New(wsCfg, deps)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := workspace.Stop(stopCtx); err != nil {
					logger.Warn("workspace stop failed", "err", err)
				}
			}()
			logger.Info("workspace running", "window", wsCfg.WindowID, "backend", cfg.Backend.SocketURL)
			if err := workspace.Start(ctx); err != nil {
				return err
			}
			return workspace.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&windowID, "window", "w", "", "window partition id (default from config)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "state profile (default from config)")
	return cmd
}

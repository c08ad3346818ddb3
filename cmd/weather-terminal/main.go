package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/config"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
	"github.com/ngmaloney/weather-terminal/internal/ui"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "weather-terminal [place]",
	Short: "NOAA weather dashboard for the terminal",
	Long: "Shows forecasts, alerts, tides and marine zones from NOAA for a zipcode, \"City, ST\", " +
		"a saved favorite or your current location (\"here\"). With no place, the last viewed location is restored.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logCfg := cfg.Log
		// The dashboard owns the terminal, so its log goes to a file.
		if cmd == cmd.Root() {
			logCfg.File = cfg.LogFile()
		}
		if err := config.InitLogger(logCfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		model := ui.NewModel(ui.Config{
			Orchestrator:        env.orch,
			Favorites:           env.favs,
			InitialPlace:        refresh.ParsePlace(strings.Join(args, " ")),
			RestoreLastViewed:   len(args) == 0,
			AutoRefresh:         cfg.Refresh.AutoEnabled,
			AutoRefreshInterval: cfg.Refresh.AutoInterval,
			Notice:              env.notice,
		})

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run dashboard: %w", err)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

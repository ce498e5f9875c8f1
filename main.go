package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebben/qkanhe/database"
	"github.com/tebben/qkanhe/server"
	"github.com/tebben/qkanhe/service"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

var (
	configPath string
	qkanPath   string
	hePath     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:          "qkanhe",
	Short:        "Transfer sewer networks between QKan and Hystem-Extran",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := settings.InitializeConfig(configPath); err != nil {
			return err
		}
		return settings.ConfigureLogging(settings.GetConfig().Log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path of the YAML configuration file")

	rootCmd.AddCommand(
		passCommand(session.KindExport, "Export the QKan network into the HE database"),
		passCommand(session.KindImport, "Import the HE network into the QKan database"),
		passCommand(session.KindResults, "Import HE simulation results into ResultsSch"),
		passCommand(session.KindLink, "Refresh the link tables of the QKan database"),
		serveCmd,
		configCmd,
	)
}

func passCommand(kind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := settings.GetConfig()
			if qkanPath != "" {
				cfg.QKan.Path = qkanPath
			}
			if hePath != "" {
				cfg.HE.Path = hePath
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer database.CloseDBs()

			snap, err := service.Run(ctx, cfg, kind)
			if perr := printSnapshot(snap); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&qkanPath, "qkan", "", "QKan database file (overrides qkan.path)")
	cmd.Flags().StringVar(&hePath, "he", "", "HE database file (overrides he.path)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the pass report as JSON")
	return cmd
}

func printSnapshot(snap session.Snapshot) error {
	if snap.RunID == "" {
		return nil
	}
	if jsonOutput {
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("print report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	blocks := make([]string, 0, len(snap.Counts))
	for b := range snap.Counts {
		blocks = append(blocks, b)
	}
	sort.Strings(blocks)

	fmt.Printf("%s %s\n", snap.Kind, snap.RunID)
	for _, b := range blocks {
		fmt.Printf("  %-24s %6d\n", b, snap.Counts[b])
	}
	for _, w := range snap.Warnings {
		fmt.Printf("  Warnung: %s\n", w)
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start(settings.GetConfig())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := settings.Render(settings.GetConfig())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Debugf("qkanhe: %v", err)
		os.Exit(1)
	}
}

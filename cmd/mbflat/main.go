package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/engine"
	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mbflat",
		Short: "Flatten MusicBrainz JSON dumps into per-artist documents",
		Long: `mbflat turns the MusicBrainz JSON dump archives into one JSON document
per artist and per album, plus SQLite search databases.

The pipeline has three resumable stages:
  extract  decompress artist, release-group and release archives into flat files
  index    build byte-offset indexes over the flat files
  process  join every artist with its release groups and releases

Every stage can be interrupted and rerun; completed work is not repeated.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mbflat.yaml)")
	rootCmd.PersistentFlags().String("db", "mbflat-state.db", "state database file (progress ledger and run history)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mbflat")
		viper.SetConfigType("yaml")
	}

	// MBFLAT_PROCESSING_WORKERS overrides processing.workers
	viper.SetEnvPrefix("MBFLAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if engine.IsCancellation(err) {
			fmt.Fprintln(os.Stderr, "Interrupted; rerun the same command to resume.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/engine"
	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindFlags binds command flags to config keys when the command runs, so
// commands sharing a key do not overwrite each other's bindings.
func bindFlags(bindings map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for flag, key := range bindings {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
		return nil
	}
}

// loadConfig materializes viper settings into a validated Config and
// applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	util.SetVerbose(cfg.Logging.Verbose)
	util.SetQuiet(cfg.Logging.Quiet)
	return cfg, nil
}

// session bundles what every stage command opens: configuration, the
// state database and the event log.
type session struct {
	cfg    *config.Config
	db     *store.Store
	logger *report.EventLogger
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := &store.OpenOptions{}
	if fs, network := util.FilesystemType(cfg.Paths.StateDB); network {
		util.WarnLog("State database is on a network filesystem (%s); WAL locking may be unreliable", fs)
		opts.NetworkOptimized = true
	}
	db, err := store.OpenWithOptions(cfg.Paths.StateDB, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	level := report.ParseLevel(cfg.Logging.EventLevel)
	if cfg.Logging.Verbose {
		level = report.LevelDebug
	}
	logger, err := report.NewEventLogger(cfg.Paths.ArtifactsDir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	if logger.Path() != "" {
		util.DebugLog("Event log: %s", logger.Path())
	}
	return &session{cfg: cfg, db: db, logger: logger}, nil
}

func (s *session) Close() {
	s.logger.Close()
	s.db.Close()
}

// startRun records the start of stage in the runs table.
func (s *session) startRun(stage string) (string, time.Time) {
	start := time.Now()
	cfgJSON, err := json.Marshal(s.cfg)
	if err != nil {
		cfgJSON = nil
	}
	runID, err := s.db.StartRun(stage, string(cfgJSON))
	if err != nil {
		util.WarnLog("Could not record run start: %v", err)
		return "", start
	}
	s.logger.SetRunID(runID)
	util.DebugLog("Run %s (%s)", runID, stage)
	return runID, start
}

// finishRun records the outcome of stage in the runs table and event log.
func (s *session) finishRun(runID, stage string, c store.RunCounters, start time.Time, runErr error) {
	status := runOutcome(runErr)
	if status == store.RunFailed {
		s.logger.LogError(report.EventError, s.stageInput(stage), runErr)
	}
	if runID != "" {
		if err := s.db.FinishRun(runID, status, c, runErr); err != nil {
			util.WarnLog("Could not record run end: %v", err)
		}
	}
	s.logger.LogRun(stage, status, map[string]int{
		"considered": c.Considered,
		"completed":  c.Completed,
		"failed":     c.Failed,
		"skipped":    c.Skipped,
		"filtered":   c.Filtered,
		"albums":     c.Albums,
	}, time.Since(start))
}

// stageInput is the directory a stage reads from.
func (s *session) stageInput(stage string) string {
	switch stage {
	case "extract":
		return s.cfg.Paths.DumpDir
	case "index":
		return s.cfg.Paths.DataDir
	default:
		return s.cfg.Paths.IndexDir
	}
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return store.RunCompleted
	case engine.IsCancellation(err):
		return store.RunCancelled
	default:
		return store.RunFailed
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

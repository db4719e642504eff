package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/franz/mbflat/internal/archive"
	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure mbflat can operate correctly.

This command checks:
- SQLite version and FTS5 support
- State database accessibility and integrity
- Dump archives and checksum manifest
- Write access to the data, index and output directories
- Filesystem type (network filesystems are slower and lock poorly)
- Disk space availability

Use this command to troubleshoot issues before running the pipeline.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	util.InfoLog("=== mbflat doctor ===")
	util.InfoLog("")

	results := []checkResult{
		checkSQLite(),
		checkDatabase(cfg.Paths.StateDB),
		checkDumpDirectory(cfg),
	}
	for _, d := range []struct{ label, path string }{
		{"Data directory", cfg.Paths.DataDir},
		{"Index directory", cfg.Paths.IndexDir},
		{"Output directory", cfg.Paths.OutputDir},
	} {
		results = append(results, checkWritableDirectory(d.label, d.path))
		if r, ok := checkFilesystem(d.label, d.path); ok {
			results = append(results, r)
		}
	}
	results = append(results, checkDiskSpace(cfg.Paths.DataDir, "data"))
	if cfg.Paths.OutputDir != cfg.Paths.DataDir {
		results = append(results, checkDiskSpace(cfg.Paths.OutputDir, "output"))
	}

	util.InfoLog("")
	hasErrors, hasWarnings := printResults(results)

	util.InfoLog("")
	switch {
	case hasErrors:
		util.ErrorLog("Some critical checks failed. Resolve them before running mbflat.")
		return fmt.Errorf("system diagnostics failed")
	case hasWarnings:
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	default:
		util.SuccessLog("All checks passed.")
	}
	return nil
}

func printResults(results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += ": " + r.message
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}
	return hasErrors, hasWarnings
}

// checkSQLite verifies the embedded SQLite and its FTS5 module.
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{name: "SQLite", error: true, message: "unable to determine version"}
	}
	if !store.HasFTS5() {
		return checkResult{name: "SQLite", error: true, message: fmt.Sprintf("version %s without FTS5 (search databases need it)", version)}
	}
	return checkResult{name: "SQLite", message: fmt.Sprintf("version %s with FTS5", version)}
}

// checkDatabase verifies the state database is usable.
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{name: "State database", warning: true, message: "no database path specified (use --db or config)"}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{name: "State database", message: fmt.Sprintf("%s (will be created on first run)", dbPath)}
		}
		return checkResult{name: "State database", error: true, message: fmt.Sprintf("cannot access %s: %v", dbPath, err)}
	}
	if !info.Mode().IsRegular() {
		return checkResult{name: "State database", error: true, message: fmt.Sprintf("%s is not a regular file", dbPath)}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{name: "State database", error: true, message: fmt.Sprintf("cannot open %s: %v", dbPath, err)}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{name: "State database", error: true, message: fmt.Sprintf("integrity check failed: %v", err)}
	}

	sum, err := db.Summary()
	if err != nil {
		return checkResult{name: "State database", error: true, message: err.Error()}
	}
	return checkResult{
		name: "State database",
		message: fmt.Sprintf("%s (%s, %s completed, %s failed)", dbPath, util.FormatBytes(info.Size()),
			util.FormatCount(sum.Completed), util.FormatCount(sum.Failed)),
	}
}

// checkDumpDirectory looks for the archives or, failing that, already
// extracted flat files.
func checkDumpDirectory(cfg *config.Config) checkResult {
	const name = "Dump archives"
	var missing []string
	for _, e := range cfg.Extract.Entities {
		if fileExists(filepath.Join(cfg.Paths.DumpDir, e+".tar.xz")) {
			continue
		}
		if ok, _ := archive.IsExtracted(filepath.Join(cfg.Paths.DataDir, e)); ok {
			continue
		}
		missing = append(missing, e)
	}
	if len(missing) > 0 {
		return checkResult{name: name, error: true,
			message: fmt.Sprintf("no archive or flat file for %v in %s", missing, cfg.Paths.DumpDir)}
	}

	if cfg.ManifestPath(fileExists) == "" {
		if cfg.Extract.RequireChecksum {
			return checkResult{name: name, error: true, message: "no checksum manifest but extract.require_checksum is set"}
		}
		return checkResult{name: name, warning: true, message: "present, no MD5SUMS or SHA256SUMS to verify against"}
	}
	return checkResult{name: name, message: fmt.Sprintf("%d entities present with checksums", len(cfg.Extract.Entities))}
}

// checkWritableDirectory verifies path is a directory we can write to,
// creating it if needed.
func checkWritableDirectory(label, path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return checkResult{name: label, error: true, message: fmt.Sprintf("cannot access %s: %v", path, err)}
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return checkResult{name: label, error: true, message: fmt.Sprintf("cannot create %s: %v", path, err)}
		}
		return checkResult{name: label, message: fmt.Sprintf("%s (created)", path)}
	}
	if !info.IsDir() {
		return checkResult{name: label, error: true, message: fmt.Sprintf("%s is not a directory", path)}
	}

	testFile := filepath.Join(path, ".mbflat_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{name: label, error: true, message: fmt.Sprintf("cannot write to %s: %v", path, err)}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{name: label, message: fmt.Sprintf("%s (writable)", path)}
}

// checkFilesystem warns about network filesystems. ok is false when the
// type cannot be determined.
func checkFilesystem(label, path string) (checkResult, bool) {
	fs, network := util.FilesystemType(path)
	if fs == "" {
		return checkResult{}, false
	}
	name := label + " filesystem"
	if network {
		return checkResult{name: name, warning: true,
			message: fmt.Sprintf("%s is a network filesystem; expect slower writes and retries", fs)}, true
	}
	return checkResult{name: name, message: fs}, true
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	// The extracted release file alone is well over 100 GB.
	availGB := float64(availBytes) / (1 << 30)
	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	warning := false
	warningMsg := ""
	if availGB < 250 {
		warning = true
		warningMsg = " (less than a full extraction needs)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}

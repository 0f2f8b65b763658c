package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plantguard/internal/config"
	"plantguard/internal/store"
)

// initCmd initializes plantguard in the current workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize plantguard in the current workspace",
	Long: `Creates the .plantguard/ directory, writes a default config.yaml
and creates the sightings database. Existing files are left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	dir := filepath.Join(ws, config.DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := resolveConfigPath(ws)
	cfg := config.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Config already exists: %s\n", path)
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	} else {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote default config: %s\n", path)
	}

	st, err := store.Open(cfg.ResolveDatabasePath(ws))
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("workspace initialized", zap.String("workspace", ws), zap.String("db", st.Path()))
	fmt.Fprintf(out, "Sightings database: %s\n", st.Path())
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plantguard/internal/store"
)

// sightingsCmd lists recorded HIGH-risk sightings
var sightingsCmd = &cobra.Command{
	Use:   "sightings",
	Short: "List recorded HIGH-risk sightings",
	RunE:  runSightings,
}

func runSightings(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.ResolveDatabasePath(ws))
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderer().Sightings(list))
	return nil
}

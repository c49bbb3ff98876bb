package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LoveLedger/LoveLedger/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and a starter agent roster",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var initForce bool

// starterRoster seeds agents.yaml with two autonomous agents.
const starterRoster = `# Agents known to LoveLedger. Send SIGHUP to "loveledger serve" after editing.
agents:
  - wallet: "0x1111111111111111111111111111111111111111"
    name: Juliet
    personality: romantic
    autoChat: true
  - wallet: "0x2222222222222222222222222222222222222222"
    name: Romeo
    personality: adventurous
    autoChat: true
`

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config with defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	switch _, statErr := os.Stat(path); {
	case statErr == nil && !initForce:
		fmt.Fprintf(out, "Config:  %s (%s)\n", warn("kept"), path)
	case statErr == nil || errors.Is(statErr, os.ErrNotExist):
		if err := config.Save(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Config:  %s (%s)\n", ok("written"), path)
	default:
		return fmt.Errorf("stat config: %w", statErr)
	}

	cfg, err := loadConfigFn()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	roster := cfg.Paths.Roster
	if _, err := os.Stat(roster); err == nil {
		fmt.Fprintf(out, "Roster:  %s (%s)\n", warn("kept"), roster)
		return nil
	}
	if err := config.EnsureDir(filepath.Dir(roster)); err != nil {
		return fmt.Errorf("create roster dir: %w", err)
	}
	if err := os.WriteFile(roster, []byte(starterRoster), 0o600); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	fmt.Fprintf(out, "Roster:  %s (%s)\n", ok("written"), roster)
	return nil
}

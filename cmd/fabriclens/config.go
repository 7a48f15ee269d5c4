package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fabriclens/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Long: `Write a config file holding every default threshold so it can be
edited. The file goes to --config when given, otherwise to
$XDG_CONFIG_HOME/fabriclens/config.yaml (or ~/.config/fabriclens/config.yaml).`,
		Args: cobra.NoArgs,
		// the target file usually does not exist yet, so it is not loaded
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = config.DefaultConfig()
			return a.setupLogger()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}

			_, err := os.Stat(path)
			switch {
			case err == nil && !force:
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("stat config: %w", err)
			}

			if err := a.cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			a.logger.Info("config written", "path", path)
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source := "built-in defaults"
			if a.cfgPath != "" {
				source = a.cfgPath
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintf(a.stdout, "# %s\n%s", source, data)
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initConfig mirrors config.Config's mapstructure keys so the
// scaffolded file round-trips cleanly through viper's unmarshal.
type initConfig struct {
	Logs              string `yaml:"logs"`
	Network           string `yaml:"network"`
	Syslog            string `yaml:"syslog"`
	Filter            string `yaml:"filter"`
	Output            string `yaml:"output"`
	OutputPath        string `yaml:"output_path"`
	LogLevel          string `yaml:"log_level"`
	MetricsAddr       string `yaml:"metrics_addr"`
	CorrelateWithinMs int64  `yaml:"correlate_within_ms"`
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter .nql.yaml config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := ".nql.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("init: %s already exists, pass --force to overwrite", path)
	}

	defaults := initConfig{
		Filter:            "*",
		Output:            "stdout",
		LogLevel:          "info",
		MetricsAddr:       ":9090",
		CorrelateWithinMs: 100,
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("init: marshal defaults: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("init: write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/screenrec/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing screenrec configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

With no config file or environment overrides this shows every option with
its default value, which makes a useful template:

  screenrec config dump > config.yaml

Environment variables use the SCREENREC_ prefix and underscores for nesting.
Example: recording.output_dir -> SCREENREC_RECORDING_OUTPUT_DIR`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# screenrec configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h (bare numbers are seconds)")
	fmt.Fprintln(out, "# Size format: 32MB, 8MiB (bare numbers are bytes)")
	fmt.Fprintf(out, "# Environment overrides: %s_<SECTION>_<KEY>\n", config.EnvPrefix)
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

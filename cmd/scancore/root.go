package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scancore/internal/config"
	"scancore/internal/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scancore",
	Short: "scancore is an internet-scale network scanner core",
	Long: `scancore crafts and sends raw probes (SYN/ACK/FIN/NULL/Xmas/UDP/idle),
correlates replies without per-probe state when the scan is stateless,
adapts its send rate to what each target sustains, and optionally follows
up open ports with service detection.

Examples:
  scancore scan -sS -p 1-1000 192.168.1.0/24
  scancore scan -sV -p 80,443,8080 example.com
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

// Execute runs the root command, recovering from any panic that escapes a
// subcommand so a single malformed target or probe never takes the whole
// run down silently.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\nscancore: fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initViperConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

func initViperConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("SCANCORE")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // a missing config file is fine; flags+defaults carry the run
}

// initCLILogger wires logrus up for interactive CLI use: quiet by default,
// verbose only when --log-level was explicitly set, matching how a probe
// sweep shouldn't spam a terminal unless asked to.
func initCLILogger(cmd *cobra.Command) {
	level := "warn"
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	if level == "debug" {
		pterm.EnableDebugMessages()
	} else {
		pterm.DisableDebugMessages()
	}

	logCfg := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stdout",
		Caller: false,
	}
	if _, err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "scancore: failed to init logger: %v\n", err)
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupSetup,
	Short:   "Read and write settings",
	Long: `Read and write settings in the config file.

Settings are resolved in this order, later winning: built-in defaults, the
config file, PRIO_* environment variables (sync.max-retry is read from
PRIO_SYNC_MAX_RETRY), then command-line flags.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		k := config.Lookup(key)
		if k == nil {
			fail(config.ValidateKey(key, ""))
		}
		value := config.GetString(key)
		if k.Secret && value != "" {
			value = "********"
		}
		if jsonOutput {
			outputJSON(config.Setting{Key: key, Value: value, Source: config.Source(key)})
			return
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting in the config file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path := config.FilePath()
		if err := config.SetYamlConfig(path, args[0], args[1]); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "value": args[1], "file": path})
			return
		}
		fmt.Printf("%s Set %s in %s\n", ui.RenderPass(ui.IconPass), args[0], path)
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a setting from the config file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := config.FilePath()
		if err := config.UnsetYamlConfig(path, args[0]); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "file": path})
			return
		}
		fmt.Printf("%s Unset %s\n", ui.RenderPass(ui.IconPass), args[0])
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every setting and where it came from",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.Settings()
		if jsonOutput {
			outputJSON(settings)
			return
		}
		fmt.Printf("%s %s\n\n", ui.RenderMuted("Config file:"), config.FilePath())
		for _, s := range settings {
			value := s.Value
			if value == "" {
				value = ui.RenderMuted("(unset)")
			}
			fmt.Printf("%-20s %s %s\n", s.Key, value, ui.RenderMuted("["+s.Source+"]"))
		}
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}

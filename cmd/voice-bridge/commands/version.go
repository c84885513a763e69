package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hotbutter/voice/cmd/voice-bridge/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if IsVerbose() {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if base, err := os.UserConfigDir(); err == nil {
				fmt.Printf("  config: %s\n", filepath.Join(base, appDir, configFile))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

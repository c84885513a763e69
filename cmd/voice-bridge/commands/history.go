package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotbutter/voice/pkg/transcript"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show recorded conversation transcripts",
	Long: `Without arguments, list the sessions in the transcript store.
With a session id, print that session's transcript.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.dir, "transcript-dir", "", "transcript store directory")
	rootCmd.AddCommand(historyCmd)
}

var historyFlags struct {
	dir string
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	dir := historyFlags.dir
	if dir == "" {
		if dir, err = defaultTranscriptDir(cfg); err != nil {
			return err
		}
	}
	store, err := transcript.Open(transcript.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("open transcript store at %s: %w", dir, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println(dimStyle.Render("no recorded sessions"))
			return nil
		}
		for _, id := range sessions {
			fmt.Println(id)
		}
		return nil
	}

	entries, err := store.List(ctx, args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no transcript for session %s", args[0])
	}
	for _, e := range entries {
		ts := dimStyle.Render(e.Time.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("%s %s %s\n", ts, labelStyle.Render(e.Role+":"), e.Text)
	}
	return nil
}

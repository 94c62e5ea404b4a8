package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List configured playlist topics",
	Long: `List the playlist topics in the order they appear in the selection
keyboard, followed by the default topic every file is forwarded to.`,
	RunE: runTopics,
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("invalid topics: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tTHREAD")
	for _, topic := range reg.Topics() {
		fmt.Fprintf(w, "%s\t%d\n", topic.Name, topic.ThreadID)
	}
	def := reg.Default()
	fmt.Fprintf(w, "%s (default)\t%d\n", def.Name, def.ThreadID)

	return w.Flush()
}

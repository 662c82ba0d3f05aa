package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gem-assistant/internal/models"
)

// newResearchCmd creates the research command for one instrument.
func newResearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "research <instrument>",
		Short: "Gather and show research for one instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Analyst == nil {
				return fmt.Errorf("research unavailable, check search credentials and store")
			}

			inst, err := models.FindInstrument(app.Config.Universe, args[0])
			if err != nil {
				return err
			}

			result, err := app.Analyst.ResearchInstrument(cmd.Context(), inst)
			if err != nil {
				output.Error("Research failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResearch(output, inst.DisplayName, result)
			return nil
		},
	}
}

// newOutlookCmd creates the outlook command.
func newOutlookCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "outlook",
		Short: "Gather and show a general market outlook",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Analyst == nil {
				return fmt.Errorf("research unavailable, check search credentials and store")
			}

			result, err := app.Analyst.MarketOutlook(cmd.Context())
			if err != nil {
				output.Error("Outlook research failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResearch(output, "Market outlook", result)
			return nil
		},
	}
}

func printResearch(output *Output, title string, result models.ResearchResult) {
	output.Bold("%s (%s)", title, result.Scope)
	output.Dim("Gathered %s, valid until %s",
		result.GeneratedAt.Format("2006-01-02 15:04"),
		result.ExpiresAt.Format("2006-01-02 15:04"))
	output.Println()

	if len(result.Snippets) == 0 {
		output.Println("No sources found.")
		return
	}
	for _, snip := range result.Snippets {
		output.Printf("%d. %s\n", snip.Rank, snip.Title)
		output.Dim("   %s [%s]", snip.URL, snip.SourceID)
		if snip.Snippet != "" {
			output.Printf("   %s\n", snip.Snippet)
		}
		output.Println()
	}
}

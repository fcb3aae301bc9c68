package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"taskagent/internal/agent"
)

// classifyOutput is what `taskctl classify` prints.
type classifyOutput struct {
	Classification    agent.Result    `json:"classification"`
	Selection         agent.Selection `json:"selection"`
	Confirmation      string          `json:"confirmation_text"`
	NeedsConfirmation bool            `json:"requires_confirmation"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message and show the selected operation",
	Long: `Run the intent classifier and action selector on a message without
touching any backend. Prints the classification, the selection and the
confirmation text as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		result := agent.NewClassifier(nil).Classify(message)
		selector := agent.NewSelector(nil)

		out := classifyOutput{
			Classification:    result,
			Selection:         selector.SelectResult(result),
			Confirmation:      agent.ConfirmationText(result.Intent, result.Params),
			NeedsConfirmation: agent.RequiresConfirmation(result.Intent),
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

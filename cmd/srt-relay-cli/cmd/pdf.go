package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pdfOutput string

func init() {
	rootCmd.AddCommand(pdfCmd)
	pdfCmd.Flags().StringVarP(&pdfOutput, "output", "o", "", "Output file (defaults to expediente_<oid>.pdf).")
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <expediente-oid>",
	Short: "Downloads the consolidated pdf of an expediente through the relay.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := client.R().
			SetContext(cmd.Context()).
			Get("/srt/expediente-pdf/" + args[0])
		if err != nil {
			fatal(err)
		}
		if res.IsError() {
			fatal(fmt.Errorf("%s: %s", res.Status(), res.String()))
		}

		output := pdfOutput
		if output == "" {
			output = fmt.Sprintf("expediente_%s.pdf", args[0])
		}
		if err := os.WriteFile(output, res.Body(), 0o644); err != nil {
			fatal(err)
		}
		fmt.Println(output)
	},
}

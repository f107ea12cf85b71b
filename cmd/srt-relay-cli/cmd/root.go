package cmd

import (
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var BaseUrl string

var client *resty.Client

var (
	usuario  string
	password string
)

var rootCmd = &cobra.Command{
	Use:   "srt-relay-cli",
	Short: "srt-relay-cli is a CLI interface for the SRT relay service.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&usuario, "usuario", os.Getenv("SRT_USER"), "Portal CUIT (defaults to SRT_USER).")
	rootCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("SRT_PASS"), "Portal password (defaults to SRT_PASS).")
}

func Execute() {
	client = resty.New().SetBaseURL(BaseUrl)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

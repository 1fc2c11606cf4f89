package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type browseOptions struct {
	configPath string
	query      string
	tags       []string
	page       int
	notOwned   bool
}

func newRootCmd() *cobra.Command {
	opts := &browseOptions{}
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse projects in the terminal",
		Long: `Browse opens the projects collection of the contract-analysis API in a
terminal view with paging, search, filters, selection and row details.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "path to configuration file")
	f.StringVarP(&opts.query, "query", "q", "", "initial search query")
	f.StringSliceVar(&opts.tags, "tag", nil, "only projects with these tags (repeatable)")
	f.IntVar(&opts.page, "page", 0, "zero-based page to open")
	f.BoolVar(&opts.notOwned, "not-owned", false, "hide projects you own")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

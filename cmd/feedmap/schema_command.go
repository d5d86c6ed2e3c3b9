package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedmap/internal/feed"
)

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <file|url|->",
		Short: "Print the fields found in a feed",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			var arg string
			if len(argv) == 1 {
				arg = argv[0]
			}
			input := a.inputFor(arg)

			text, err := a.loader().Load(cmd.Context(), input)
			if err != nil {
				return err
			}
			m := feed.NewManager(feed.WithLogger(a.log))
			res, err := m.Load(text)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(res.Schema))
			for _, e := range res.Schema {
				rows = append(rows, []string{e.Name, yesNo(e.Required), e.HelpText})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Required", "Help"}, rows, nil))
			fmt.Fprintf(out, "%d items in %s\n", res.Items, input.Name())
			return nil
		},
	}
}

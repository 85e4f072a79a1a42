package cmd

import (
	"io"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/query"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// QueryMain is wrapped by NewQueryCommand and only exported for testing purposes.
var QueryMain *query.Main

// NewQueryCommand returns a new cobra command wrapping QueryMain.
func NewQueryCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	QueryMain = query.NewMain()
	queryCommand := &cobra.Command{
		Use:   "query [count|uids|records]",
		Short: "query - count or retrieve the records of a dataset",
		Long:  `Runs a count, unique id count or records query against a dataset,
filtered by entity ids, time range and a bounding box or polygon.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				QueryMain.Action = args[0]
			}
			return runWith(stderr, func(opts ...connect.Option) error {
				return QueryMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	flags := queryCommand.Flags()
	err := commandeer.Flags(flags, QueryMain)
	if err != nil {
		panic(err)
	}
	return queryCommand
}

func init() {
	subcommandFns["query"] = NewQueryCommand
}

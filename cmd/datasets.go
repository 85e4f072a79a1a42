package cmd

import (
	"io"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/datasets"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// DatasetsMain is wrapped by NewDatasetsCommand and only exported for testing purposes.
var DatasetsMain *datasets.Main

// NewDatasetsCommand returns a new cobra command wrapping DatasetsMain.
func NewDatasetsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	DatasetsMain = datasets.NewMain()
	datasetsCommand := &cobra.Command{
		Use:   "datasets [list|get|schema|filter-fields|permissions]",
		Short: "datasets - list and inspect datasets",
		Long:  `Lists datasets, or shows the definition, schema, filter field schema
or permissions of the dataset named by --dataset.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				DatasetsMain.Action = args[0]
			}
			return runWith(stderr, func(opts ...connect.Option) error {
				return DatasetsMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	flags := datasetsCommand.Flags()
	err := commandeer.Flags(flags, DatasetsMain)
	if err != nil {
		panic(err)
	}
	return datasetsCommand
}

func init() {
	subcommandFns["datasets"] = NewDatasetsCommand
}

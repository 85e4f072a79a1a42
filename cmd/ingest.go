package cmd

import (
	"io"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/csv"
	"github.com/generalsystem/dfi/ingest"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// IngestMain is wrapped by NewIngestCommand and only exported for testing purposes.
var IngestMain *ingest.Main

// CheckMain is wrapped by the check subcommand of NewIngestCommand and only
// exported for testing purposes.
var CheckMain *csv.Main

// NewIngestCommand returns a new cobra command wrapping IngestMain, with a
// check subcommand wrapping CheckMain.
func NewIngestCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	IngestMain = ingest.NewMain()
	ingestCommand := &cobra.Command{
		Use:   "ingest [put|info|status|abort|trust-policy]",
		Short: "ingest - import CSV files into a dataset",
		Long: `Starts an import batch of CSV files behind URLs, such as the output of
the presign command, and follows or aborts it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				IngestMain.Action = args[0]
			}
			return runWith(stderr, func(opts ...connect.Option) error {
				return IngestMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	err := commandeer.Flags(ingestCommand.Flags(), IngestMain)
	if err != nil {
		panic(err)
	}

	CheckMain = csv.NewMain()
	checkCommand := &cobra.Command{
		Use:   "check [FILE|URL]...",
		Short: "check - find bad rows in CSV files before importing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				CheckMain.Files = args
			}
			return CheckMain.RunTo(contextOf(cmd), stdout)
		},
	}
	err = commandeer.Flags(checkCommand.Flags(), CheckMain)
	if err != nil {
		panic(err)
	}
	ingestCommand.AddCommand(checkCommand)
	return ingestCommand
}

func init() {
	subcommandFns["ingest"] = NewIngestCommand
}

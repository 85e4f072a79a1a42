package cmd

import (
	"io"
	"strings"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/sql"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// SQLMain is wrapped by NewSQLCommand and only exported for testing purposes.
var SQLMain *sql.Main

// NewSQLCommand returns a new cobra command wrapping SQLMain.
func NewSQLCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	SQLMain = sql.NewMain()
	sqlCommand := &cobra.Command{
		Use:   "sql STATEMENT",
		Short: "sql - run a SQL statement against a dataset",
		Long:  `Translates a SELECT statement into a query document and runs it.
Use --translate to print the document without running it.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				SQLMain.Statement = strings.Join(args, " ")
			}
			return runWith(stderr, func(opts ...connect.Option) error {
				return SQLMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	flags := sqlCommand.Flags()
	err := commandeer.Flags(flags, SQLMain)
	if err != nil {
		panic(err)
	}
	return sqlCommand
}

func init() {
	subcommandFns["sql"] = NewSQLCommand
}

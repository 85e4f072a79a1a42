package cmd

import (
	"io"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/info"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// InfoMain is wrapped by NewInfoCommand and only exported for testing purposes.
var InfoMain *info.Main

// NewInfoCommand returns a new cobra command wrapping InfoMain.
func NewInfoCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	InfoMain = info.NewMain()
	infoCommand := &cobra.Command{
		Use:   "info",
		Short: "info - show library, API and product versions",
		Long:  `Shows the version of this client, of the DFI API and of the DFI product.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWith(stderr, func(opts ...connect.Option) error {
				return InfoMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	flags := infoCommand.Flags()
	err := commandeer.Flags(flags, InfoMain)
	if err != nil {
		panic(err)
	}
	return infoCommand
}

func init() {
	subcommandFns["info"] = NewInfoCommand
}

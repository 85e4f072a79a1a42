package cmd

import (
	"io"

	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/identities"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// IdentitiesMain is wrapped by NewIdentitiesCommand and only exported for testing purposes.
var IdentitiesMain *identities.Main

// NewIdentitiesCommand returns a new cobra command wrapping IdentitiesMain.
func NewIdentitiesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	IdentitiesMain = identities.NewMain()
	identitiesCommand := &cobra.Command{
		Use:   "identities [me|list|tokens]",
		Short: "identities - show identities and API tokens",
		Long:  `Shows the identity of the token in use, lists the identities of the
tenant, or lists the API tokens of the current identity.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				IdentitiesMain.Action = args[0]
			}
			return runWith(stderr, func(opts ...connect.Option) error {
				return IdentitiesMain.RunTo(contextOf(cmd), stdout, opts...)
			})
		},
	}
	flags := identitiesCommand.Flags()
	err := commandeer.Flags(flags, IdentitiesMain)
	if err != nil {
		panic(err)
	}
	return identitiesCommand
}

func init() {
	subcommandFns["identities"] = NewIdentitiesCommand
}

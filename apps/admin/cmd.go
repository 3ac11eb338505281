package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/attendance/apps/shared"
	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/storage/database"
)

var (
	isTerminalFunc = term.IsTerminal       // mockable
	gooseRunFunc   = database.Migrate      // mockable
	openRepoFunc   = shared.OpenRepository // mockable
	newMailSvcFunc = shared.NewMailService // mockable
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	in     io.Reader
	out    io.Writer
}

// newRootCmd builds the admin command tree around cli.
func newRootCmd(cli *commandLine) *cobra.Command {
	root := &cobra.Command{
		Use:   "admin",
		Short: "Lab attendance administration",
		Long: `admin runs attendance sessions from the terminal (a USB barcode scanner types into stdin),
applies database migrations and decodes barcodes from image files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(cli.in)
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.takeCmd())
	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.decodeCmd())
	return root
}

// stdinIsTerminal reports whether the CLI reads from an interactive terminal.
func (cli *commandLine) stdinIsTerminal() bool {
	f, ok := cli.in.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}

package main

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	barcodesvc "github.com/trezcool/attendance/services/barcode"
)

func (cli *commandLine) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode IMAGE...",
		Short: "Print the barcodes found in image files (JPEG, PNG, GIF)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cli.decode(args)
		},
	}
}

func (cli *commandLine) decode(files []string) error {
	decoder := barcodesvc.NewDecoder()
	for _, name := range files {
		data, err := ioutil.ReadFile(name)
		if err != nil {
			return errors.Wrap(err, "reading image")
		}
		payloads, err := decoder.Decode(data)
		if err != nil {
			return errors.Wrap(err, name)
		}
		if len(payloads) == 0 {
			fmt.Fprintf(cli.out, "%s: no barcode\n", name)
			continue
		}
		for _, p := range payloads {
			fmt.Fprintf(cli.out, "%s: %s\n", name, p)
		}
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io/ioutil"
	"net/mail"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/attendance/apps/shared"
	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

type takeOptions struct {
	roster     string
	department string
	lab        string
	out        string
	mailTo     []string
}

func (cli *commandLine) takeCmd() *cobra.Command {
	var opts takeOptions
	cmd := &cobra.Command{
		Use:   "take --roster FILE --lab LAB [--department DEPT]",
		Short: "Take attendance offline: one scanned ID per stdin line, exported on EOF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.take(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.roster, "roster", "r", "", "roster file (.xlsx or .csv)")
	cmd.Flags().StringVarP(&opts.department, "department", "d", "", "only keep the students of this department")
	cmd.Flags().StringVarP(&opts.lab, "lab", "l", "", "lab name")
	cmd.Flags().StringVarP(&opts.out, "out", "o", session.ExportFilename, "attendance sheet to write")
	cmd.Flags().StringSliceVar(&opts.mailTo, "mail", nil, "also email the sheet to these addresses")
	_ = cmd.MarkFlagRequired("roster")
	_ = cmd.MarkFlagRequired("lab")
	return cmd
}

func (cli *commandLine) take(ctx context.Context, opts takeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	to := make([]mail.Address, 0, len(opts.mailTo))
	for _, s := range opts.mailTo {
		addr, err := mail.ParseAddress(core.CleanString(s))
		if err != nil {
			return errors.Wrapf(core.ErrInvalidInput, "invalid email %q", s)
		}
		to = append(to, *addr)
	}

	f, err := os.Open(opts.roster)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer func() { _ = f.Close() }()

	repo, closeRepo, err := openRepoFunc(ctx, cli.conf)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	defer func() { _ = closeRepo() }()

	mailSvc := newMailSvcFunc(cli.conf, cli.logger)
	svc := shared.NewSessionService(cli.conf, cli.logger, repo, mailSvc)
	defer svc.Close()

	sum, err := svc.Start(ctx, session.StartParams{
		File:       f,
		Filename:   filepath.Base(opts.roster),
		Department: opts.department,
		Lab:        opts.lab,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d students, %d PCs\n", sum.Lab, sum.Total, sum.Capacity)

	interactive := cli.stdinIsTerminal()
	prompt := func() {
		if interactive {
			fmt.Fprint(cli.out, "scan> ")
		}
	}

	scanner := bufio.NewScanner(cli.in)
	for prompt(); scanner.Scan(); prompt() {
		payload := core.CleanString(scanner.Text())
		if payload == "" {
			continue
		}
		res, err := svc.Scan(ctx, sum.ID, payload, session.SourceCLI)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, describeResult(res))
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrap(err, "reading scans")
	}
	if interactive {
		fmt.Fprintln(cli.out)
	}

	data, err := svc.Export(ctx, sum.ID)
	if err != nil {
		return err
	}
	if err = ioutil.WriteFile(opts.out, data, 0644); err != nil {
		return errors.Wrap(err, "writing attendance sheet")
	}
	if len(to) > 0 {
		if err = svc.MailExport(ctx, sum.ID, to...); err != nil {
			return err
		}
		mailSvc.Wait() // the process exits right after
	}

	final, err := svc.Status(ctx, sum.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d present, %d absent: written to %s\n", final.Present, final.Absent, opts.out)
	return nil
}

func describeResult(res session.Result) string {
	switch res.Status {
	case session.StatusMatched:
		if res.PCNo.Valid {
			return fmt.Sprintf("%s %s: present, PC %d", res.ID, res.Name, res.PCNo.Int)
		}
		return fmt.Sprintf("%s %s: present, no PC left", res.ID, res.Name)
	case session.StatusAlreadyPresent:
		return fmt.Sprintf("%s: already present", res.ID)
	default:
		return fmt.Sprintf("%s: not on the roster", res.ID)
	}
}

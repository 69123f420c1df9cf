package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shortclaim/internal/claim"
	"shortclaim/internal/config"
	"shortclaim/internal/ledger"
	"shortclaim/internal/server"
	"shortclaim/internal/service"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <domain> [email]",
		Short: "Show which short names a domain can claim and what they cost",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			stack, err := server.Connect(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer stack.Provider.Close()

			svc := service.NewClaimService(service.Options{
				DNS:    stack.DNS,
				Prover: stack.Prover,
				Ledger: stack.Registry,
				Logger: log.Named("claims"),
			})

			email := ""
			if len(args) > 1 {
				email = args[1]
			}
			res, err := svc.Check(ctx, args[0], email)
			if errors.Is(err, claim.ErrIneligible) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no claimable short name\n", args[0])
				return nil
			}
			if err != nil {
				log.Debug("check failed", zap.Error(err))
				return err
			}
			return printCheck(cmd.OutOrStdout(), res)
		},
	}
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "--"
}

func printCheck(out io.Writer, res *service.CheckResult) error {
	fmt.Fprintf(out, "%s\n", res.Name)
	fmt.Fprintf(out, "  [%s] TXT record at %s\n", mark(res.Record.Found), res.TXTName)
	if res.FormatHasAddress() {
		fmt.Fprintf(out, "  [ok] owner %s\n", res.Record.Address)
	} else {
		fmt.Fprintf(out, "  [--] no a=0x<address> value\n")
	}
	switch {
	case res.Record.Secure:
		fmt.Fprintf(out, "  [ok] DNSSEC signed\n")
	case res.Record.NSEC:
		fmt.Fprintf(out, "  [ok] proven unsigned\n")
	default:
		fmt.Fprintf(out, "  [--] no DNSSEC proof\n")
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPRICE (ETH)\tSTATUS")
	for _, c := range res.Claims {
		status := "available"
		if c.Submitted {
			status = "submitted"
		}
		fmt.Fprintf(tw, "%s.eth\t%s\t%s\t%s\n", c.Label, c.Method, ledger.FormatEther(c.Cost), status)
	}
	return tw.Flush()
}

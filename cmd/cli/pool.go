package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/golend/internal/adapter/http/dto"
)

func poolCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Lending pool operations",
	}

	cmd.AddCommand(
		poolShowCmd(opts),
		poolClaimableCmd(opts),
		poolAmountCmd(opts, "fund", "Pledge an amount to the pool"),
		poolAmountCmd(opts, "withdraw", "Withdraw part of your pledge"),
		poolActionCmd(opts, "finalize", "Lock in the loan terms (requester only)"),
		poolActionCmd(opts, "release", "Pay the principal to the requester"),
		poolActionCmd(opts, "accept-payment", "Credit repayments received by the pool"),
		poolActionCmd(opts, "claim", "Collect your share of repayments"),
	)
	return cmd
}

func poolPath(id uint64, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("/api/v1/loans/%d/pool", id)
	}
	return fmt.Sprintf("/api/v1/loans/%d/pool/%s", id, suffix)
}

func poolShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <loan-id>",
		Short: "Show pool state, terms and lenders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLoanID(args[0])
			if err != nil {
				return err
			}

			var res dto.PoolResponse
			if err := newAPIClient(opts).do(cmd.Context(), "GET", poolPath(id, ""), decimalsQuery(opts.decimalsPtr()), nil, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return printPool(cmd.OutOrStdout(), &res)
		},
	}
}

func poolClaimableCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claimable <loan-id> <lender>",
		Short: "Show what a lender can claim right now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLoanID(args[0])
			if err != nil {
				return err
			}

			var res dto.ClaimableResponse
			if err := newAPIClient(opts).do(cmd.Context(), "GET", poolPath(id, "lenders/"+args[1]+"/claimable"), decimalsQuery(opts.decimalsPtr()), nil, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s can claim %s from loan %d\n", res.Lender, formatAmount(res.Claimable), res.LoanID)
			return nil
		},
	}
}

func poolAmountCmd(opts *globalOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <loan-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLoanID(args[0])
			if err != nil {
				return err
			}

			req := dto.PoolAmountRequest{Amount: args[1], Decimals: opts.decimalsPtr()}
			var res dto.PoolResultResponse
			if err := newAPIClient(opts).do(cmd.Context(), "POST", poolPath(id, action), nil, req, &res); err != nil {
				return err
			}
			return printPoolResult(cmd.OutOrStdout(), opts, action, &res)
		},
	}
}

func poolActionCmd(opts *globalOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <loan-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLoanID(args[0])
			if err != nil {
				return err
			}

			var res dto.PoolResultResponse
			if err := newAPIClient(opts).do(cmd.Context(), "POST", poolPath(id, action), decimalsQuery(opts.decimalsPtr()), nil, &res); err != nil {
				return err
			}
			return printPoolResult(cmd.OutOrStdout(), opts, action, &res)
		},
	}
}

func printPoolResult(w io.Writer, opts *globalOptions, action string, res *dto.PoolResultResponse) error {
	if opts.json() {
		return printJSON(w, res)
	}

	fmt.Fprintf(w, "%s on loan %d: ok\n", action, res.LoanID)
	if res.Amount != nil {
		fmt.Fprintf(w, "Amount:   %s\n", formatAmount(*res.Amount))
	}
	if r := res.Receipt; r != nil {
		fmt.Fprintf(w, "Observed: %s  credited: %s  excess: %s  repaid: %t\n",
			formatAmount(r.Observed), formatAmount(r.Credited), formatAmount(r.Excess), r.Repaid)
	}
	for _, t := range res.Transfers {
		fmt.Fprintf(w, "Transfer %s: %s -> %s %s\n", t.ID, t.From, t.To, formatAmount(t.Amount))
	}
	if res.Pool != nil {
		fmt.Fprintf(w, "Status:   %s\n", res.Pool.Status)
	}
	return nil
}

func printPool(w io.Writer, p *dto.PoolResponse) error {
	fmt.Fprintf(w, "Pool %s for loan %d\n", p.Address, p.LoanID)
	fmt.Fprintf(w, "Status:     %s\n", p.Status)
	fmt.Fprintf(w, "Requested:  %s\n", formatAmount(p.RequestedAmount))
	fmt.Fprintf(w, "Remaining:  %s\n", formatAmount(p.AmountRemaining))
	fmt.Fprintf(w, "Pledged:    %s\n", formatAmount(p.TotalPledged))
	if p.Status != "funding" {
		fmt.Fprintf(w, "Principal:  %s\n", formatAmount(p.Terms.PrincipalAmount))
		fmt.Fprintf(w, "Rate:       %s (WAD)\n", p.Terms.InterestRate)
		fmt.Fprintf(w, "Owed:       %s\n", formatAmount(p.Terms.AmountOwed))
		fmt.Fprintf(w, "Repaid:     %s\n", formatAmount(p.Terms.AmountRepaid))
	}
	if p.Uncredited.Base != "0" {
		fmt.Fprintf(w, "Uncredited: %s\n", formatAmount(p.Uncredited))
	}

	if len(p.Lenders) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LENDER\tLENT\tCLAIMED")
	for _, l := range p.Lenders {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Lender, formatAmount(l.LendingAmount), formatAmount(l.ClaimedAmount))
	}
	return tw.Flush()
}

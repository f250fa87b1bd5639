package main

import (
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/golend/internal/adapter/http/dto"
)

func loansCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Loan registry operations",
	}
	cmd.AddCommand(loansListCmd(opts), loansGetCmd(opts), loansCreateCmd(opts))
	return cmd
}

func loansListCmd(opts *globalOptions) *cobra.Command {
	var (
		requester     string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loan requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
			}
			if d := opts.decimalsPtr(); d != nil {
				query.Set("decimals", strconv.Itoa(int(*d)))
			}

			path := "/api/v1/loans"
			if requester != "" {
				path = "/api/v1/requesters/" + requester + "/loans"
			}

			var res dto.ListLoansResponse
			if err := newAPIClient(opts).do(cmd.Context(), "GET", path, query, nil, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREQUESTER\tAMOUNT\tDAYS\tHEADLINE")
			for _, l := range res.Loans {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", l.ID, l.Requester, formatAmount(l.LoanAmount), l.LoanPeriod, truncate(l.Headline, 40))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&requester, "requester", "", "Only loans requested by this address")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func loansGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <loan-id>",
		Short: "Show one loan request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLoanID(args[0])
			if err != nil {
				return err
			}

			var res dto.LoanResponse
			if err := newAPIClient(opts).do(cmd.Context(), "GET", fmt.Sprintf("/api/v1/loans/%d", id), decimalsQuery(opts.decimalsPtr()), nil, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loan %d: %s\n", res.ID, res.Headline)
			if res.Description != "" {
				fmt.Fprintf(out, "  %s\n", res.Description)
			}
			fmt.Fprintf(out, "Requester: %s\n", res.Requester)
			fmt.Fprintf(out, "Pool:      %s\n", res.PoolAddress)
			fmt.Fprintf(out, "Asset:     %s\n", res.Asset)
			fmt.Fprintf(out, "Amount:    %s\n", formatAmount(res.LoanAmount))
			fmt.Fprintf(out, "Period:    %d days\n", res.LoanPeriod)
			fmt.Fprintf(out, "Rate:      %s .. %s (WAD)\n", res.InterestRateMin, res.InterestRateMax)
			return nil
		},
	}
}

func loansCreateCmd(opts *globalOptions) *cobra.Command {
	var req dto.CreateLoanRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a new loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Decimals = opts.decimalsPtr()

			var res dto.LoanResponse
			if err := newAPIClient(opts).do(cmd.Context(), "POST", "/api/v1/loans", nil, req, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created loan %d, pool %s\n", res.ID, res.PoolAddress)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Headline, "headline", "", "Short title")
	f.StringVar(&req.Description, "description", "", "Longer description")
	f.StringVar(&req.Asset, "asset", "", "Asset address")
	f.StringVar(&req.Amount, "amount", "", "Requested amount")
	f.Uint64Var(&req.PeriodDays, "days", 30, "Loan period in days")
	f.StringVar(&req.InterestRateMin, "rate-min", "0", "Minimum interest rate (WAD)")
	f.StringVar(&req.InterestRateMax, "rate-max", "0", "Maximum interest rate (WAD)")
	_ = cmd.MarkFlagRequired("headline")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func parseLoanID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid loan id %q", s)
	}
	return id, nil
}

// formatAmount prefers whole units when the server sent them.
func formatAmount(a dto.Amount) string {
	if a.Units != nil {
		return a.Units.String()
	}
	return a.Base
}

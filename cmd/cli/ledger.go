package main

import (
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/golend/internal/adapter/http/dto"
)

func ledgerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res dto.ConsistencyResponse
			err := newAPIClient(opts).do(cmd.Context(), "GET", "/api/v1/ledger/consistency", nil, nil, &res)

			var apiErr *apiError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
				return err
			}
			if opts.json() {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			} else {
				printConsistency(cmd, &res)
			}
			if !res.Consistent {
				return errors.New("consistency check FAILED")
			}
			return nil
		},
	}

	cmd.AddCommand(consistencyCmd)
	return cmd
}

func printConsistency(cmd *cobra.Command, res *dto.ConsistencyResponse) {
	out := cmd.OutOrStdout()
	if res.Consistent {
		fmt.Fprintln(out, "Consistency check PASSED")
	} else {
		fmt.Fprintln(out, "Consistency check FAILED")
	}
	if len(res.Assets) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSUPPLY\tHELD\tDEBITS\tCREDITS\tBALANCED")
	for _, a := range res.Assets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", a.Asset, a.IssuerSupply, a.HolderTotal, a.DebitTotal, a.CreditTotal, a.Balanced)
	}
	_ = tw.Flush()
}

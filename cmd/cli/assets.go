package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iho/golend/internal/adapter/http/dto"
)

func assetsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Asset book operations",
	}
	cmd.AddCommand(assetsDepositCmd(opts), assetsTransferCmd(opts), assetsBalanceCmd(opts))
	return cmd
}

func assetsDepositCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <owner> <asset> <amount>",
		Short: "Mint an asset to an owner (admin only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.DepositRequest{Owner: args[0], Asset: args[1], Amount: args[2], Decimals: opts.decimalsPtr()}

			var res dto.TransferResponse
			if err := newAPIClient(opts).do(cmd.Context(), "POST", "/api/v1/assets/deposit", nil, req, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deposited %s to %s (transfer %s)\n", formatAmount(res.Amount), res.To, res.ID)
			return nil
		},
	}
}

func assetsTransferCmd(opts *globalOptions) *cobra.Command {
	var memo string

	cmd := &cobra.Command{
		Use:   "transfer <to> <asset> <amount>",
		Short: "Move an asset from the caller to another address",
		Long: `Move an asset from the caller to another address.

Repaying a loan is a transfer to the pool address followed by
"pool accept-payment".`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.TransferRequest{To: args[0], Asset: args[1], Amount: args[2], Decimals: opts.decimalsPtr()}
			if memo != "" {
				req.Metadata = map[string]any{"memo": memo}
			}

			var res dto.TransferResponse
			if err := newAPIClient(opts).do(cmd.Context(), "POST", "/api/v1/assets/transfer", nil, req, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transferred %s from %s to %s (transfer %s)\n", formatAmount(res.Amount), res.From, res.To, res.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&memo, "memo", "", "Free-form note stored with the transfer")
	return cmd
}

func assetsBalanceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <owner> <asset>",
		Short: "Show an owner's balance of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res dto.BalanceResponse
			path := "/api/v1/accounts/" + args[0] + "/assets/" + args[1]
			if err := newAPIClient(opts).do(cmd.Context(), "GET", path, decimalsQuery(opts.decimalsPtr()), nil, &res); err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAmount(res.Balance))
			return nil
		},
	}
}

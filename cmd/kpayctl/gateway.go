package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"kinesis-pay/internal/app"
	"kinesis-pay/internal/gateway"
)

func signCmd() *cobra.Command {
	var (
		body  string
		nonce int64
	)

	cmd := &cobra.Command{
		Use:   "sign [method] [path]",
		Short: "Print the signed headers for a gateway request",
		Long: `Print the headers the adapter would send for a gateway request.

Examples:
  kpayctl sign GET /api/merchants/payment/id/sdk/abc123
  kpayctl sign POST /api/merchants/payment --body '{"globalMerchantId":"m1","amount":"45.00"}'
  kpayctl sign GET /api/merchants/payment/id/sdk/abc123 --nonce 1700000000000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AccessToken == "" || cfg.SecretToken == "" {
				return fmt.Errorf("access token and secret token must be configured")
			}

			var payload []byte
			if body != "" {
				var compact bytes.Buffer
				if err := json.Compact(&compact, []byte(body)); err != nil {
					return fmt.Errorf("body is not valid JSON: %w", err)
				}
				payload = compact.Bytes()
			}

			signer := gateway.NewSigner(cfg.AccessToken, cfg.SecretToken)
			var signed *gateway.SignedRequest
			if nonce > 0 {
				signed = signer.SignWithNonce(nonce, args[0], args[1], payload)
			} else {
				signed = signer.Sign(args[0], args[1], payload)
			}

			fmt.Printf("%s %s\n", signed.Method, signed.Path)
			keys := make([]string, 0, len(signed.Header))
			for k := range signed.Header {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %s\n", k, strings.Join(signed.Header.Values(k), ", "))
			}
			if len(signed.Body) > 0 {
				fmt.Printf("\n%s\n", signed.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "JSON request body")
	cmd.Flags().Int64Var(&nonce, "nonce", 0, "fixed nonce in milliseconds")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [payment-id]",
		Short: "Fetch the gateway status of a payment without reconciling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				status, err := a.Gateway.GetStatus(cmd.Context(), args[0], gateway.AuditRef{})
				if err != nil {
					return err
				}
				var out bytes.Buffer
				if err := json.Indent(&out, status.Raw, "", "  "); err != nil {
					_, err = os.Stdout.Write(status.Raw)
					return err
				}
				fmt.Println(out.String())
				return nil
			})
		},
	}
}

func rateCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "rate [base] [quote]",
		Short: "Show the best bid for a pair, e.g. kpayctl rate KAU USD",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if refresh {
					if err := a.Rates.Invalidate(cmd.Context(), args[0], args[1]); err != nil {
						return err
					}
				}
				rate, err := a.Rates.Rate(cmd.Context(), args[0], args[1], gateway.AuditRef{})
				if err != nil {
					return err
				}
				fmt.Printf("%s_%s %s\n", strings.ToUpper(args[0]), strings.ToUpper(args[1]), rate.String())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached rate and ask the gateway")
	return cmd
}

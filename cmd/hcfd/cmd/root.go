package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	sdkmath "cosmossdk.io/math"

	"github.com/hcfprotocol/hcfchain/app"
	ledgertypes "github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// NewRootCmd creates the root command for hcfd.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hcfd",
		Short: "HCF Chain - deterministic token economics engine",
		Long: `HCF Chain is a fixed-supply token economic engine combining
transaction taxes, tiered staking yields, 20-generation referral
commissions, anti-dump sell controls, a 99-slot node registry and
periodic ranking rewards. All value movement is integer basis-point
arithmetic; nothing is ever created or destroyed outside the recorded
burn and pool flows.`,
	}

	rootCmd.AddCommand(
		exportCmd(),
		validateGenesisCmd(),
		taxPreviewCmd(),
	)
	return rootCmd
}

// exportCmd boots an engine from a genesis file (or defaults) and dumps
// the fully settled state back out as JSON.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [genesis.json]",
		Short: "Initialize an engine and export its settled genesis state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := app.DefaultGenesisDoc()
			if len(args) == 1 {
				loaded, err := loadGenesis(args[0])
				if err != nil {
					return err
				}
				doc = loaded
			}
			engine, err := app.NewEngine(app.Config{})
			if err != nil {
				return err
			}
			if err := engine.InitGenesis(doc); err != nil {
				return err
			}
			exported, err := engine.ExportGenesis()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(exported, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}

// validateGenesisCmd parses and validates a genesis file without
// booting an engine.
func validateGenesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-genesis <genesis.json>",
		Short: "Validate a genesis file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadGenesis(args[0])
			if err != nil {
				return err
			}
			if doc.Ledger == nil || doc.AntiDump == nil || doc.StakePool == nil ||
				doc.Referral == nil || doc.Node == nil || doc.Ranking == nil {
				return fmt.Errorf("genesis file is missing one or more module sections")
			}
			for name, v := range map[string]interface{ Validate() error }{
				"ledger":    doc.Ledger,
				"antidump":  doc.AntiDump,
				"stakepool": doc.StakePool,
				"referral":  doc.Referral,
				"node":      doc.Node,
				"ranking":   doc.Ranking,
			} {
				if err := v.Validate(); err != nil {
					return fmt.Errorf("%s genesis: %w", name, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "genesis file is valid")
			return nil
		},
	}
}

// taxPreviewCmd prints the four-way tax split a transfer of the given
// kind and amount would produce under default parameters.
func taxPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax-preview",
		Short: "Preview the tax split for a transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawAmount, err := cmd.Flags().GetString("amount")
			if err != nil {
				return err
			}
			kindFlag, err := cmd.Flags().GetString("kind")
			if err != nil {
				return err
			}
			amount, ok := sdkmath.NewIntFromString(rawAmount)
			if !ok || !amount.IsPositive() {
				return fmt.Errorf("invalid amount %q", rawAmount)
			}
			kind := ledgertypes.TransferKind(kindFlag)
			if err := kind.Validate(); err != nil {
				return err
			}

			params := ledgertypes.DefaultParams()
			rate := params.TaxRateFor(kind)
			tax := rate.MulBps(amount)
			treasury := params.Split.TreasuryBps.MulBps(tax)
			liquidity := params.Split.LiquidityBps.MulBps(tax)
			node := params.Split.NodeBps.MulBps(tax)
			burn := tax.Sub(treasury).Sub(liquidity).Sub(node)

			fmt.Fprintf(cmd.OutOrStdout(), "kind=%s amount=%s tax=%s (%d bps)\n", kind, amount, tax, rate)
			fmt.Fprintf(cmd.OutOrStdout(), "  burn=%s treasury=%s liquidity=%s node=%s\n", burn, treasury, liquidity, node)
			fmt.Fprintf(cmd.OutOrStdout(), "  net=%s\n", amount.Sub(tax))
			return nil
		},
	}
	cmd.Flags().String("amount", cast.ToString(10000), "transfer amount in uhcf")
	cmd.Flags().String("kind", string(ledgertypes.TransferKindPlain), "transfer kind: buy|sell|transfer")
	return cmd
}

func loadGenesis(path string) (*app.GenesisDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	var doc app.GenesisDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	return &doc, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/pool"
	"github.com/foundry-bot/partner-research/internal/session"
	"github.com/foundry-bot/partner-research/internal/store"
)

var (
	identityLabel      string
	identityEmail      string
	identityPassword   string
	identityRecEmail   string
	identityRecPass    string
	identityListJSON   bool
	identityStatusName string
)

// openPool opens the store and builds a credential pool around it. The
// caller owns the store and must close it.
func openPool(ctx context.Context) (*pool.Pool, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	cipher, err := session.NewCipher(cfg.Crypto.Key)
	if err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "init cipher (set RESEARCH_CRYPTO_KEY to 64 hex chars)")
	}

	return pool.New(st, cipher, cfg.Pool), st, nil
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the scraping identity pool",
}

var identityAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an identity with encrypted credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		identity, err := p.Add(ctx, identityLabel, identityEmail, identityPassword, identityRecEmail, identityRecPass)
		if err != nil {
			return eris.Wrap(err, "add identity")
		}

		fmt.Printf("added identity %s (%s)\n", identity.ID, identity.Label)
		return nil
	},
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show pool health per identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := p.HealthSummary(ctx)
		if err != nil {
			return eris.Wrap(err, "pool health")
		}

		if identityListJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tSTATUS\tELIGIBLE\tTODAY\tTOTAL\tFAILURES\tCOOLDOWN UNTIL\tLAST ERROR")
		for _, row := range rows {
			cooldown := "-"
			if row.CooldownUntil != nil {
				cooldown = row.CooldownUntil.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%d\t%s\t%s\n",
				row.ID, row.Label, row.Status, row.Eligible,
				row.ScrapesToday, row.TotalScrapes, row.FailureCount,
				cooldown, row.LastError,
			)
		}
		return w.Flush()
	},
}

var identityResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear an identity's cooldown, failures, and daily count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := p.ResetIdentity(ctx, args[0]); err != nil {
			return eris.Wrap(err, "reset identity")
		}
		fmt.Printf("reset identity %s\n", args[0])
		return nil
	},
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an identity and its session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, st, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := p.Remove(ctx, args[0]); err != nil {
			return eris.Wrap(err, "remove identity")
		}
		fmt.Printf("removed identity %s\n", args[0])
		return nil
	},
}

var identitySetStatusCmd = &cobra.Command{
	Use:   "set-status <id>",
	Short: "Force an identity's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.IdentityStatus(identityStatusName)
		switch status {
		case model.IdentityActive, model.IdentityVerificationRequired, model.IdentityCooldown, model.IdentityBanned:
		default:
			return eris.Errorf("unknown status: %s", identityStatusName)
		}

		ctx := cmd.Context()
		p, st, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := p.SetStatus(ctx, args[0], status); err != nil {
			return eris.Wrap(err, "set status")
		}
		fmt.Printf("identity %s status set to %s\n", args[0], status)
		return nil
	},
}

func init() {
	identityAddCmd.Flags().StringVar(&identityLabel, "label", "", "operator-facing label")
	identityAddCmd.Flags().StringVar(&identityEmail, "email", "", "login email (required)")
	identityAddCmd.Flags().StringVar(&identityPassword, "password", "", "login password (required)")
	identityAddCmd.Flags().StringVar(&identityRecEmail, "recovery-email", "", "recovery email")
	identityAddCmd.Flags().StringVar(&identityRecPass, "recovery-password", "", "recovery email password")
	_ = identityAddCmd.MarkFlagRequired("email")
	_ = identityAddCmd.MarkFlagRequired("password")

	identityListCmd.Flags().BoolVar(&identityListJSON, "json", false, "emit JSON instead of a table")

	identitySetStatusCmd.Flags().StringVar(&identityStatusName, "status", "", "active | verification_required | cooldown | banned")
	_ = identitySetStatusCmd.MarkFlagRequired("status")

	identityCmd.AddCommand(identityAddCmd, identityListCmd, identityResetCmd, identityRemoveCmd, identitySetStatusCmd)
	rootCmd.AddCommand(identityCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/backend"
	"github.com/fedegimenez/inmate-state-ledger/internal/config"
	"github.com/fedegimenez/inmate-state-ledger/internal/custody/service"
	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/identity"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	format  string
	v       *viper.Viper
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Administer the custody state ledger",
	Long: `ledgerctl operates directly on the configured ledger store.

It reads the same ledger.yaml and environment as ledgerd, so it can inspect
records, verify the hash chains and manage role grants without going through
the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		return nil
	},
}

func init() {
	v = config.New()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/ledger.yaml or ./ledger.yaml)")
	rootCmd.PersistentFlags().String("storage", "", "storage backend: memory, postgres or sqlite")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text or json")
	_ = v.BindPFlag("ledger.storage", rootCmd.PersistentFlags().Lookup("storage"))

	rootCmd.AddCommand(digestCmd, tokenCmd, grantCmd, revokeCmd, rolesCmd, viewCmd, verifyCmd, versionCmd)
}

// open loads configuration and connects the configured backend.
func open(ctx context.Context) (*config.Config, *backend.Backend, error) {
	cfg, _, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	be, err := backend.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return cfg, be, nil
}

func printJSON(x any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(x)
}

// ── digest ───────────────────────────────────────────────────────────────────

var digestCmd = &cobra.Command{
	Use:   "digest <text>",
	Short: "Print the Keccak-256 digest of text (as used for record keys)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(digest.OfString(args[0]))
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <actor>",
	Short: "Issue a bearer token for actor, signed with identity.token_secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(v)
		if err != nil {
			return err
		}
		ttl := cfg.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		ti, err := identity.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.Issuer, ttl)
		if err != nil {
			return err
		}
		tok, err := ti.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default identity.token_ttl)")
}

// ── grant / revoke / roles ───────────────────────────────────────────────────

var asCaller string

// grantCommand builds grant or revoke from the matching Controller method.
func grantCommand(use, short string, apply func(ctl *access.Controller, ctx context.Context, caller, actor string, role access.Role) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <actor> <role>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := access.ParseRole(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, be, err := open(ctx)
			if err != nil {
				return err
			}
			defer be.Close()

			ctl := access.NewController(be.Roles, zap.NewNop())
			if err := apply(ctl, ctx, asCaller, args[0], role); err != nil {
				return err
			}
			fmt.Printf("%s %s %s\n", use, args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVar(&asCaller, "as", "", "acting administrator (must hold ADMIN)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

var grantCmd = grantCommand("grant", "Grant a role to an actor", (*access.Controller).Grant)

var revokeCmd = grantCommand("revoke", "Revoke a role from an actor", (*access.Controller).Revoke)

var rolesCmd = &cobra.Command{
	Use:   "roles <actor>",
	Short: "List the roles held by an actor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, be, err := open(ctx)
		if err != nil {
			return err
		}
		defer be.Close()

		roles, err := access.NewController(be.Roles, zap.NewNop()).Roles(ctx, args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(map[string]any{"actor": args[0], "roles": roles})
		}
		for _, r := range roles {
			fmt.Println(r)
		}
		return nil
	},
}

// ── view ─────────────────────────────────────────────────────────────────────

var viewCmd = &cobra.Command{
	Use:   "view <humanId>",
	Short: "Show a custody record and its event timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, be, err := open(ctx)
		if err != nil {
			return err
		}
		defer be.Close()

		// Roles are irrelevant for reads.
		svc := service.NewService(service.NewEngine(be.Ledger, nil, zap.NewNop()))
		view, err := svc.View(ctx, args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(view)
		}
		if !view.Exists {
			fmt.Println("no record")
			return nil
		}
		printView(view)
		return nil
	},
}

func printView(view *ledger.View) {
	rec := view.Record
	fmt.Printf("Record:       %s\n", rec.IDDigest)
	fmt.Printf("Name:         %s\n", rec.Name)
	fmt.Printf("State:        %s (%d)\n", rec.State, rec.State)
	fmt.Printf("Location:     %s\n", rec.Location)
	fmt.Printf("Last actor:   %s\n", rec.LastActor)
	fmt.Printf("Last updated: %s\n", rec.LastUpdated.Format(time.RFC3339))
	fmt.Printf("Case digest:  %s\n\n", rec.CaseDigest)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATE\tISSUER\tTIMESTAMP\tDESCRIPTION")
	for _, ev := range view.Timeline {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.Kind, ev.ResultingState, ev.Issuer,
			ev.Timestamp.Format(time.RFC3339), ev.Description)
	}
	_ = w.Flush()
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk every record's hash chain and report integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, be, err := open(ctx)
		if err != nil {
			return err
		}
		defer be.Close()

		report, err := ledger.Verify(ctx, be.Ledger)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(report)
		}
		fmt.Printf("ok: %d records, %d events, root %s\n", report.Records, report.Events, report.Root)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

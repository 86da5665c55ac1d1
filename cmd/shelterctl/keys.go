package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long: `Manage the bearer API keys that identify actors.

The key name is recorded as inBy/outBy on the records its holder touches.
Keys with the admin scope may search the audit log, remove records,
export, and manage keys.`,
	}
	cmd.AddCommand(a.keysCreateCmd(), a.keysListCmd(), a.keysRevokeCmd())
	return cmd
}

func (a *app) keysCreateCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var scopes []string
			if admin {
				scopes = append(scopes, models.ScopeAdmin)
			}
			created, err := apikey.NewManager(st, 0).Create(cmd.Context(), args[0], scopes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", created.Key.ID)
			fmt.Fprintf(out, "name:   %s\n", created.Key.Name)
			fmt.Fprintf(out, "scopes: %s\n", strings.Join(created.Key.Scopes, ","))
			fmt.Fprintf(out, "key:    %s\n", created.Raw)
			fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin scope")
	return cmd
}

func (a *app) keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := apikey.NewManager(st, 0).List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tSCOPES\tCREATED\tLAST USED")
			for _, k := range keys {
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","),
					k.CreatedAt.Format(time.RFC3339), lastUsed)
			}
			return tw.Flush()
		},
	}
}

func (a *app) keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := apikey.NewManager(st, 0).Revoke(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"crm-ai-agent/application"
	"crm-ai-agent/domain"
)

type globalFlags struct {
	cfgFile          string
	verbose          bool
	tenant           string
	businessIdentity string
	role             string
}

func (f *globalFlags) requestContext() (domain.RequestContext, error) {
	if f.tenant == "" {
		return domain.RequestContext{}, fmt.Errorf("--tenant is required: %w", domain.ErrMissingTenant)
	}
	return domain.RequestContext{
		TenantID:           f.tenant,
		BusinessIdentityID: f.businessIdentity,
		UserRole:           f.role,
	}, nil
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "crm-agent",
		Short: "Natural-language assistant for CRM data",
		Long: `crm-agent answers questions about clients, events and quotes in plain
Spanish or English, and can create or update records on request.
Every request is scoped to one tenant.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "YAML config file (defaults and environment are used when empty)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.tenant, "tenant", os.Getenv("CRM_TENANT_ID"), "tenant to act for")
	rootCmd.PersistentFlags().StringVar(&flags.businessIdentity, "business-identity", "", "restrict to one business identity of the tenant")
	rootCmd.PersistentFlags().StringVar(&flags.role, "role", "", "role of the requesting user")

	rootCmd.AddCommand(newAskCmd(flags))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	})
	rootCmd.AddCommand(newReindexCmd(flags))
	rootCmd.AddCommand(newStatsCmd(flags))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crm-agent version %s\n", version)
		},
	})

	return rootCmd
}

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	rc, err := flags.requestContext()
	if err != nil {
		return err
	}
	a, err := bootstrap(cmd.Context(), flags.cfgFile, flags.verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	chat := application.NewChatbotService(a.service, application.CreateConsoleUserMessageProvider(), cmd.OutOrStdout(), rc, a.logger)
	err = chat.StartChatbot(cmd.Context())
	if errors.Is(err, cmd.Context().Err()) {
		return nil
	}
	return err
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := flags.requestContext()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context(), flags.cfgFile, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.ProcessQuery(cmd.Context(), strings.Join(args, " "), rc)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Response)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newReindexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the embeddings of every client, event, quote and product of the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := flags.requestContext()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context(), flags.cfgFile, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.indexer.ReindexTenant(cmd.Context(), rc.TenantID)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d records (%d clients, %d events, %d quotes, %d products)\n",
				stats.Total(), stats.Clients, stats.Events, stats.Quotes, stats.Products)
			return nil
		},
	}
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what the agent has learned for the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := flags.requestContext()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd.Context(), flags.cfgFile, flags.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.learning.Stats(cmd.Context(), rc.TenantID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"giveaway-bot/internal/analytics"
	"giveaway-bot/internal/storage"

	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

// app lazily opens the store shared by every subcommand.
type app struct {
	open  func() (*storage.Store, error)
	store *storage.Store
}

func (a *app) storeFor() (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := a.open()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "giveawayctl",
		Short:         "Inspect and administer persisted giveaways",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newListCmd(a), newShowCmd(a), newStatsCmd(a), newResetCmd(a))
	return root
}

func newListCmd(a *app) *cobra.Command {
	var guildID string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List giveaways, active ones by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			var records []storage.Giveaway
			switch {
			case guildID != "":
				records, err = store.ListGuildGiveaways(cmd.Context(), guildID, !all)
			case all:
				return errors.New("--all requires --guild")
			default:
				records, err = store.ListActiveGiveaways(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printGiveaways(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "only list giveaways of this guild")
	cmd.Flags().BoolVar(&all, "all", false, "include ended giveaways (requires --guild)")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show one giveaway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			g, err := store.GetGiveaway(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message:  %s\n", g.MessageID)
			fmt.Fprintf(out, "guild:    %s\n", g.GuildID)
			fmt.Fprintf(out, "channel:  %s\n", g.ChannelID)
			fmt.Fprintf(out, "host:     %s\n", g.HostID)
			fmt.Fprintf(out, "prize:    %s\n", g.Prize)
			fmt.Fprintf(out, "winners:  %d\n", g.WinnerCount)
			fmt.Fprintf(out, "ends:     %s\n", g.EndAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "status:   %s\n", status(g))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var guildID, window string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise audited giveaway events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, err := str2duration.ParseDuration(window)
			if err != nil {
				return fmt.Errorf("invalid --since %q: %w", window, err)
			}
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			report, err := analytics.New(store).Report(cmd.Context(), guildID, time.Now().Add(-since))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "events: %d\n", report.Total)
			for _, level := range []string{"INFO", "WARN", "CRIT"} {
				fmt.Fprintf(out, "  %-5s %d\n", level, report.ByLevel[level])
			}
			for _, event := range report.Events() {
				fmt.Fprintf(out, "%s: %d\n", event, report.ByEvent[event])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "limit to one guild")
	cmd.Flags().StringVar(&window, "since", "7d", "how far back to look, e.g. 24h, 7d, 4w")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var guildID string
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every giveaway record of a guild",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if guildID == "" {
				return errors.New("--guild is required")
			}
			if !confirm {
				return errors.New("refusing to delete without --yes")
			}
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			removed, err := store.DeleteGuildGiveaways(cmd.Context(), guildID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d giveaway(s) from guild %s\n", removed, guildID)
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "guild to reset")
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}

func printGiveaways(w io.Writer, records []storage.Giveaway) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no giveaways")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MESSAGE\tGUILD\tWINNERS\tENDS\tSTATUS\tPRIZE")
	for _, g := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", g.MessageID, g.GuildID, g.WinnerCount, g.EndAt.UTC().Format(time.RFC3339), status(g), g.Prize)
	}
	return tw.Flush()
}

func status(g storage.Giveaway) string {
	if g.Ended {
		return "ended"
	}
	return "active"
}

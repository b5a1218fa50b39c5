package main

import (
	"strings"

	"github.com/spf13/cobra"

	"feedwatch/internal/config"
	"feedwatch/internal/notifier"
)

// commandContext carries the persistent flags to every subcommand.
type commandContext struct {
	configPath  string
	subreddit   string
	filterRegex string
	notify      string
	notifyEmail string

	flags *cobra.Command
}

// overrides returns only the flags the user actually set, so file values
// are kept otherwise.
func (c *commandContext) overrides() config.Overrides {
	var ov config.Overrides
	pf := c.flags.PersistentFlags()
	if pf.Changed("subreddit") {
		ov.Subreddit = &c.subreddit
	}
	if pf.Changed("filter-regex") {
		ov.FilterRegex = &c.filterRegex
	}
	switch {
	case pf.Changed("notify"):
		ov.Target = &c.notify
	case pf.Changed("notify-email"):
		t := strings.TrimSpace(c.notifyEmail)
		if t != "" {
			t = notifier.Target{Kind: notifier.KindEmail, Address: t}.String()
		}
		ov.Target = &t
	}
	return ov
}

// load parses and validates the config the same way the daemon does.
func (c *commandContext) load() (*config.Config, *config.Resolved, error) {
	cfg, err := config.NewManager(c.configPath, c.overrides()).Parse()
	if err != nil {
		return nil, nil, err
	}
	r, err := config.Resolve(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, r, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "feedwatch",
		Short:         "Watch a feed for new posts and batch them into notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	ctx.flags = rootCmd

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file (.json, .yaml or .yml)")
	pf.StringVarP(&ctx.subreddit, "subreddit", "s", "", "Only watch this community")
	pf.StringVarP(&ctx.filterRegex, "filter-regex", "r", "", "Only emit posts whose title matches this regular expression")
	pf.StringVar(&ctx.notify, "notify", "", "Notification target (mailto:addr, addr or telegram:<chat_id>)")
	pf.StringVar(&ctx.notifyEmail, "notify-email", "", "Send batched notifications to this e-mail address")
	rootCmd.MarkFlagsMutuallyExclusive("notify", "notify-email")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newDeliveriesCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

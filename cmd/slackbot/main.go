package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sidv1711/slack-bot/pkg/server"
	"github.com/sidv1711/slack-bot/pkg/service"
	"github.com/sidv1711/slack-bot/pkg/slackbot"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "slackbot",
		Short: "Slack bot and AI microservice for test data questions",
		Long: `slackbot answers /ai questions in Slack by routing them to an NL2SQL,
code generation or chat service, and exposes the same services over HTTP.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.slack-bot/config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(botCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serverOptions(a *app) []server.Option {
	opts := []server.Option{server.WithLogger(a.logger)}
	if a.db != nil {
		opts = append(opts, server.WithDatabase(a.db))
	}
	return opts
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the AI HTTP microservice",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := serverOptions(a)
			if l := a.linker(nil); l != nil {
				opts = append(opts, server.WithLinker(l))
			}
			return server.New(a.cfg.Server, a.dispatcher, opts...).Run(ctx)
		},
	}
}

func botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Slack bot with its OAuth callback server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := slackbot.NewClient(a.cfg.Slack)
			if err != nil {
				return fmt.Errorf("invalid slack config: %w", err)
			}
			linker := a.linker(client)

			deps := slackbot.Deps{
				Dispatcher: a.dispatcher,
				Reports:    a.reports(),
				Linker:     linker,
				Identities: a.identities,
				Table:      a.cfg.Database.Table,
			}
			if a.db != nil {
				deps.Executor = a.db
			}
			bot, err := slackbot.New(client, a.cfg.Slack.Debug, deps, a.logger)
			if err != nil {
				return err
			}

			srvCfg := a.cfg.Server
			srvCfg.Addr = a.cfg.Auth.CallbackAddr
			opts := serverOptions(a)
			if linker != nil {
				opts = append(opts, server.WithLinker(linker))
			}
			srv := server.New(srvCfg, a.dispatcher, opts...)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error { return bot.Run(gctx) })
			a.logger.Info("slack bot starting", zap.String("callback_addr", srvCfg.Addr))
			return g.Wait()
		},
	}
}

func askCmd() *cobra.Command {
	var serviceFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "ask [request]",
		Short: "Route one request and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			input := strings.Join(args, " ")
			rc := service.RequestContext{
				"platform":           "cli",
				service.KeyTimestamp: time.Now().UTC().Format(time.RFC3339),
			}
			resp := a.dispatcher.Route(ctx, input, rc, serviceFlag)

			if jsonFlag {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintf(os.Stderr, "Routed to %s (%s, confidence %.2f)\n",
				resp.Routing.Service, resp.Routing.Method, resp.Routing.Confidence)
			fmt.Println(slackbot.FormatAIResponse(resp, os.Getenv("USER")))
			if !resp.Success() {
				return fmt.Errorf("request failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serviceFlag, "service", "", "skip classification and use this service")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full response as JSON")
	return cmd
}

func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List registered services",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			caps := a.dispatcher.ListCapabilities()
			fallback := a.dispatcher.Registry().Fallback()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tEXAMPLES\tDESCRIPTION")
			for _, name := range a.dispatcher.Registry().Names() {
				c := caps[name]
				label := name
				if name == fallback {
					label += " (fallback)"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", label, len(c.Examples), c.Description)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	var serviceFlag string

	cmd := &cobra.Command{
		Use:   "validate [request]",
		Short: "Check whether a service would accept a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			v := a.dispatcher.Validate(strings.Join(args, " "), serviceFlag)
			if v.Valid {
				fmt.Printf("✓ %s: %s\n", serviceFlag, v.Reason)
				return nil
			}
			fmt.Printf("✗ %s: %s\n", serviceFlag, v.Reason)
			if v.Suggestion != "" {
				fmt.Printf("  %s\n", v.Suggestion)
			}
			return fmt.Errorf("request rejected")
		},
	}

	cmd.Flags().StringVar(&serviceFlag, "service", "", "service to validate against (required)")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

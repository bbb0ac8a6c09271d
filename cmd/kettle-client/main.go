// Command kettle-client runs the client-side feed engine against a kettle-api
// instance: it keeps a device-local vote ledger, applies votes with optimistic
// fallback, and mirrors one kettle's feed through the change stream.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MannyG3/Kettle/internal/client"
	"github.com/MannyG3/Kettle/internal/feed"
	"github.com/MannyG3/Kettle/internal/heat"
	"github.com/MannyG3/Kettle/internal/ledger"
	"github.com/MannyG3/Kettle/internal/logging"
	"github.com/MannyG3/Kettle/internal/posts"
	"github.com/MannyG3/Kettle/internal/thread"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kettle-client",
		Short: "Client-side engine for the Kettle feed",
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "Base URL of the kettle-api server")
	flags.String("ledger-path", "kettle-votes.json", "Path of the device-local vote ledger file")
	flags.String("redis-url", "", "Redis URL for a shared vote ledger (overrides ledger-path)")
	flags.String("device-id", "", "Device identifier scoping the shared vote ledger")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	clientViper := viper.New()
	clientViper.SetEnvPrefix("KETTLE_CLIENT")
	clientViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	clientViper.AutomaticEnv()
	if err := clientViper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(newVoteCommand(clientViper))
	rootCmd.AddCommand(newWatchCommand(clientViper))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildLogger(v *viper.Viper) (*zap.Logger, error) {
	return logging.NewLogger(v.GetString("log-level"))
}

func buildLedger(v *viper.Viper, logger *zap.Logger) (ledger.Store, error) {
	if redisURL := v.GetString("redis-url"); redisURL != "" {
		deviceID := v.GetString("device-id")
		if deviceID == "" {
			return nil, fmt.Errorf("device-id is required with a redis ledger")
		}
		return ledger.NewRedisStore(redisURL, deviceID, logger)
	}
	return ledger.NewFileStore(v.GetString("ledger-path"), logger)
}

func newVoteCommand(v *viper.Viper) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "vote <post-id>",
		Short: "Apply one vote gesture to a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			requested := ledger.Direction(direction)
			if requested != ledger.DirectionUp && requested != ledger.DirectionDown {
				return fmt.Errorf("direction must be up or down")
			}

			store, err := buildLedger(v, logger)
			if err != nil {
				return err
			}

			api, err := client.New(v.GetString("api-url"), logger)
			if err != nil {
				return err
			}

			engine, err := heat.NewEngine(heat.EngineConfig{
				Ledger:   store,
				Boundary: api,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			result, err := engine.ApplyVote(cmd.Context(), args[0], requested, 0)
			if err != nil {
				return err
			}

			state := "confirmed"
			if !result.Confirmed {
				state = "optimistic"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "heat=%d direction=%q state=%s\n",
				result.Heat, result.Direction, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "Vote direction (up or down)")
	return cmd
}

func newWatchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <kettle-slug>",
		Short: "Mirror a kettle's feed and print its reply tree on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			slug := args[0]
			api, err := client.New(v.GetString("api-url"), logger)
			if err != nil {
				return err
			}

			kettleID, err := posts.NewKettleID(slug)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var session *feed.Session
			session, err = feed.NewSession(feed.SessionConfig{
				KettleID: kettleID,
				Fetcher:  api.FetcherForSlug(slug),
				Logger:   logger,
				OnApply: func() {
					printTree(cmd, session.Tree())
				},
			})
			if err != nil {
				return err
			}

			// Manual initial load: surface failure instead of starting blind.
			if err := session.Refresh(ctx); err != nil {
				return fmt.Errorf("initial feed load: %w", err)
			}

			events, err := api.Subscribe(ctx, slug)
			if err != nil {
				return fmt.Errorf("open change feed: %w", err)
			}

			logger.Info("watching kettle", zap.String("slug", slug))
			session.Run(ctx, events)
			return nil
		},
	}
}

func printTree(cmd *cobra.Command, roots []*thread.Node) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "--- %d threads ---\n", len(roots))
	var walk func(node *thread.Node, depth int)
	walk = func(node *thread.Node, depth int) {
		badge := ""
		if heat.IsBoiling(node.Post.HeatScore) {
			badge = " [boiling]"
		}
		fmt.Fprintf(out, "%s%s (%d)%s %s\n",
			strings.Repeat("  ", depth),
			node.Post.AnonymousIdentity,
			heat.DisplayHeat(node.Post.HeatScore),
			badge,
			node.Post.Content)
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
}

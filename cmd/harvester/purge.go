package main

import (
	"fmt"

	"github.com/Sternrassler/api-harvester/pkg/cache"
	"github.com/Sternrassler/api-harvester/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "purge SOURCE...",
		Short: "Remove cached pages of the given sources",
		Long: `purge deletes every page cached for the named sources, so the next
harvest fetches them again instead of revalidating.

The Redis connection is read like the harvest's: config file, HARVESTER_REDIS_*
environment variables, then flags.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := config.LoadRedis(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client := redis.NewClient(&redis.Options{
				Addr:     rc.Addr,
				Password: rc.Password,
				DB:       rc.DB,
			})
			defer client.Close()

			if err := client.Ping(cmd.Context()).Err(); err != nil {
				return fmt.Errorf("failed to connect to Redis at %s: %w", rc.Addr, err)
			}

			manager := cache.NewManager(client)
			for _, source := range args {
				n, err := manager.Purge(cmd.Context(), source)
				if err != nil {
					return fmt.Errorf("purge %s: %w", source, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d cached pages\n", source, n)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON)")
	f.String("redis-addr", "localhost:6379", "Redis address")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database")

	return cmd
}

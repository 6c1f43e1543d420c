package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/scheduler"
	"github.com/thetangstr/vehiclesearch/internal/httpapi"
)

// Execute builds the aggregatorctl root command and runs it against ctx.
func Execute(ctx context.Context) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var configDir string
	defaultConfigDir := "config"
	if v := os.Getenv("AGGREGATOR_CONFIG_DIR"); v != "" {
		defaultConfigDir = v
	}
	root := &cobra.Command{Use: "aggregatorctl", Short: "federated vehicle listing search aggregator"}
	root.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir, "directory of per-concern YAML config files")

	root.AddCommand(searchCmd(ctx, &configDir))
	root.AddCommand(healthCmd(ctx, &configDir))
	root.AddCommand(refreshCmd(ctx, &configDir))
	root.AddCommand(serveCmd(ctx, &configDir))

	return root.Execute()
}

func searchCmd(ctx context.Context, configDir *string) *cobra.Command {
	var query, make_ string
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "run one search and print the JSON result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(ctx, *configDir)
			if err != nil {
				return err
			}
			resp, err := a.orchestrator.Search(ctx, domain.SearchRequest{
				Query:   query,
				Filters: domain.FilterSet{Make: make_},
				Page:    page,
				PerPage: perPage,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&query, "q", "", "free-text query")
	cmd.Flags().StringVar(&make_, "make", "", "make filter")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "results per page")
	return cmd
}

func healthCmd(ctx context.Context, configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "print per-source health and circuit breaker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(ctx, *configDir)
			if err != nil {
				return err
			}
			snapshot := a.engine.HealthSnapshot(ctx)
			statuses := a.breakers.AllStatuses()
			out := struct {
				Sources  map[string]domain.Health `json:"sources"`
				Breakers []interface{}            `json:"breakers"`
			}{Sources: snapshot}
			for _, st := range statuses {
				out.Breakers = append(out.Breakers, st)
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		},
	}
}

func refreshCmd(ctx context.Context, configDir *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "run one on-demand refresh pass over stale listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(ctx, *configDir)
			if err != nil {
				return err
			}
			task := refreshTask(a, limit)
			return a.scheduler.RunOnce(ctx, task)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum listings to refresh in one pass")
	return cmd
}

func serveCmd(ctx context.Context, configDir *string) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP search API and background refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(ctx, *configDir)
			if err != nil {
				return err
			}

			if err := a.scheduler.Register(ctx, "*/15 * * * *", refreshTask(a, 500)); err != nil {
				return fmt.Errorf("register refresh task: %w", err)
			}
			a.scheduler.Start()
			defer a.scheduler.Stop()

			httpCfg := httpapi.DefaultConfig()
			if port > 0 {
				httpCfg.Port = port
			} else if v := os.Getenv("HTTP_PORT"); v != "" {
				if p, perr := strconv.Atoi(v); perr == nil {
					httpCfg.Port = p
				}
			}

			server := httpapi.NewServer(httpCfg, a.orchestrator, a.engine, a.breakers)
			log.Info().Int("port", httpCfg.Port).Msg("aggregatorctl: serving")
			return server.Start()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides HTTP_PORT and the default)")
	return cmd
}

// staleLookback bounds how far back StaleSince scans; freshness.Manager
// itself decides whether a candidate in that window actually needs a
// live re-fetch.
const staleLookback = 30 * 24 * time.Hour

// refreshTask builds the idempotent scheduler.Task that re-fetches stale
// listings from their origin source and re-upserts them into the local
// index, prioritized by freshness.Manager's refresh-priority formula.
func refreshTask(a *app, limit int) scheduler.Task {
	return scheduler.Task{
		Name: "refresh_stale_listings",
		Run: func(ctx context.Context) error {
			since := time.Now().Add(-staleLookback)
			candidates, err := a.localIndex.StaleSince(ctx, since, limit)
			if err != nil {
				return fmt.Errorf("list stale listings: %w", err)
			}

			refreshed := 0
			for _, l := range candidates {
				sourcePriority := a.cfg.Sources.Priority[l.Source]
				decision := a.freshnessMgr.Evaluate(l, time.Now(), sourcePriority)
				if !decision.ShouldRefresh {
					continue
				}
				updated, err := a.engine.GetDetails(ctx, l.Source, l.SourceID)
				if err != nil {
					log.Warn().Err(err).Str("source", l.Source).Str("source_id", l.SourceID).
						Msg("aggregatorctl: refresh fetch failed")
					continue
				}
				if _, err := a.localIndex.Upsert(ctx, *updated); err != nil {
					log.Warn().Err(err).Str("source", l.Source).Str("source_id", l.SourceID).
						Msg("aggregatorctl: refresh upsert failed")
					continue
				}
				refreshed++
			}
			log.Info().Int("candidates", len(candidates)).Int("refreshed", refreshed).Msg("aggregatorctl: refresh pass complete")
			return nil
		},
	}
}

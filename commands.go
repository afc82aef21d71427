package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/audit"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/config"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/export"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/seed"
)

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "fill a ranking service with regions, fake players and random games",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Value: "admin", EnvVars: []string{"ADMIN_USERNAME"}},
			&cli.StringFlag{Name: "password", EnvVars: []string{"ADMIN_PASSWORD"}, Required: true},
			&cli.StringSliceFlag{Name: "region", Usage: "region to create (repeatable)"},
			&cli.IntFlag{Name: "players", Value: 3, Usage: "players per region"},
			&cli.IntFlag{Name: "games", Value: 30},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed, 0 for a random one"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			gw := gateway.New(cfg.Ranking.BaseURL, cfg.Ranking.Timeout).WithSession(gateway.NewSession(nil))
			if err := gw.Login(c.Context, models.Credentials{Username: c.String("username"), Password: c.String("password")}); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			defer gw.Logout(c.Context)

			opts := seed.DefaultOptions()
			if regions := c.StringSlice("region"); len(regions) > 0 {
				opts.Regions = regions
			}
			opts.PlayersPerRegion = c.Int("players")
			opts.Games = c.Int("games")
			opts.Seed = c.Uint64("seed")

			res, err := seed.Run(c.Context, gw, opts)
			if err != nil {
				return err
			}
			logger.Info("Seeding complete", "regions", res.Regions, "players", res.Players, "games", res.Games)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write the leaderboard and recent games to an xlsx workbook",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "region", Usage: "region id, 0 for all regions"},
			&cli.StringFlag{Name: "out", Usage: "output file (default: generated name in the working directory)"},
			&cli.BoolFlag{Name: "upload", Usage: "upload to the configured S3 bucket instead of writing a file"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			gw := gateway.New(cfg.Ranking.BaseURL, cfg.Ranking.Timeout)
			regionID := c.Int("region")
			name := export.FileName(regionLabel(c, gw, regionID), time.Now())

			if c.Bool("upload") {
				return uploadExport(c, cfg, gw, regionID, name)
			}

			out := c.String("out")
			if out == "" {
				out = name
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			if err := export.Write(c.Context, gw, regionID, cfg.Ranking.GamesLimit, f); err != nil {
				return err
			}
			logger.Info("Export written", "file", out)
			return nil
		},
	}
}

func uploadExport(c *cli.Context, cfg *config.Config, gw *gateway.Client, regionID int, name string) error {
	uploader, err := export.NewUploader(cfg.S3)
	if err != nil {
		return err
	}
	data, err := export.Bytes(c.Context, gw, regionID, cfg.Ranking.GamesLimit)
	if err != nil {
		return err
	}
	key, err := uploader.Upload(c.Context, name, data)
	if err != nil {
		return err
	}
	logger.Info("Export uploaded", "bucket", cfg.S3.Bucket, "key", key)
	return nil
}

func regionLabel(c *cli.Context, gw *gateway.Client, regionID int) string {
	if regionID <= 0 {
		return ""
	}
	regions, err := gw.Regions(c.Context)
	if err != nil {
		logger.Warn("Failed to load regions for export name", "error", err)
		return ""
	}
	for _, r := range regions {
		if r.ID == regionID {
			return r.Name
		}
	}
	return ""
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "inspect the exported audit trail",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "count actions by outcome in ClickHouse",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "window", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if cfg.ClickHouse.Addr == "" {
						return fmt.Errorf("CLICKHOUSE_ADDR is not set")
					}
					sink, err := audit.NewClickHouseSink(c.Context, cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password)
					if err != nil {
						return err
					}
					defer sink.Close()

					counts, err := sink.ActionCounts(c.Context, c.Duration("window"))
					if err != nil {
						return err
					}
					actions := make([]string, 0, len(counts))
					for a := range counts {
						actions = append(actions, a)
					}
					sort.Strings(actions)
					for _, a := range actions {
						outcomes := make([]string, 0, len(counts[a]))
						for o := range counts[a] {
							outcomes = append(outcomes, o)
						}
						sort.Strings(outcomes)
						for _, o := range outcomes {
							fmt.Fprintf(c.App.Writer, "%-16s %-12s %d\n", a, o, counts[a][o])
						}
					}
					return nil
				},
			},
		},
	}
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/kbembed"
	"github.com/poiesic/kbembed/config"
	"github.com/poiesic/kbembed/core"
	"github.com/poiesic/kbembed/loader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "kbembed",
		Usage:     "Chunk crawled documents and embed them incrementally",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Chunk store backend (badger, sqlite)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the chunk store (badger directory or sqlite file)",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Embedding provider (openai, langchain, gemini)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Maximum characters per chunk",
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Characters shared by consecutive chunks",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest-markdown",
				Usage:  "Chunk crawled markdown pages into the store",
				Action: ingestMarkdownCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Directory of .md files",
						Required: true,
					},
				},
			},
			{
				Name:   "ingest-discourse",
				Usage:  "Chunk downloaded Discourse topics into the store",
				Action: ingestDiscourseCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Directory of topic .json files",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "Forum root used to build topic URLs",
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Embed every chunk that has no embedding yet",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded and committed together",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Maximum embedding calls in flight",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retries for rate-limited calls",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
					&cli.Float64Flag{
						Name:  "rps",
						Usage: "Maximum embedding requests per second (0 = unlimited)",
					},
					&cli.IntFlag{
						Name:  "dimensions",
						Usage: "Expected vector width (0 = infer)",
					},
					&cli.BoolFlag{
						Name:  "normalize",
						Usage: "Scale vectors to unit length before storing",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show total, embedded and pending chunk counts",
				Action: statusCommand,
			},
		},
	}
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}

	setString("store", &cfg.Store)
	setString("db", &cfg.DBPath)
	setString("provider", &cfg.Provider)
	setString("embedding-host", &cfg.EmbeddingHost)
	setString("embedding-model", &cfg.EmbeddingModel)
	setInt("chunk-size", &cfg.ChunkSize)
	setInt("chunk-overlap", &cfg.ChunkOverlap)
	setInt("batch-size", &cfg.BatchSize)
	setInt("concurrency", &cfg.Concurrency)
	setInt("max-retries", &cfg.MaxRetries)
	setInt("dimensions", &cfg.Dimensions)
	if c.IsSet("retry-delay") {
		cfg.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("rps") {
		cfg.RequestsPerSecond = c.Float64("rps")
	}
	if c.IsSet("normalize") {
		cfg.NormalizeVectors = c.Bool("normalize")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*kbembed.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := kbembed.Open(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestMarkdownCommand(c *cli.Context) error {
	docs, err := loader.LoadMarkdownDir(c.String("dir"))
	if err != nil {
		return fmt.Errorf("failed to load markdown: %w", err)
	}
	return ingest(c, docs)
}

func ingestDiscourseCommand(c *cli.Context) error {
	docs, err := loader.LoadDiscourseDir(c.String("dir"), c.String("base-url"))
	if err != nil {
		return fmt.Errorf("failed to load topics: %w", err)
	}
	return ingest(c, docs)
}

func ingest(c *cli.Context, docs []*core.Document) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ingester, err := db.NewIngester()
	if err != nil {
		return err
	}
	defer ingester.Release()

	report, err := ingester.Ingest(c.Context, docs...)
	if report != nil {
		fmt.Fprintf(c.App.Writer, "Documents: %d, ingested: %d, skipped: %d, chunks inserted: %d\n",
			report.Documents, report.Ingested, len(report.Skipped), report.Chunks)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func embedCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := db.Config()
	s, err := db.NewScheduler(c.Context, nil, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s (%s)\n", cfg.DBPath, cfg.Store)
	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s\n", cfg.Provider)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	report, err := s.Run(c.Context)
	if report != nil {
		report.WriteSummary(c.App.Writer)
	}
	if err != nil {
		return fmt.Errorf("embedding run failed: %w", err)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Repository().Stats(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	dim, err := db.Repository().EmbeddingDimension(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Total chunks:    %d\n", stats.Total)
	fmt.Fprintf(c.App.Writer, "Embedded chunks: %d\n", stats.Embedded)
	fmt.Fprintf(c.App.Writer, "Pending chunks:  %d\n", stats.Pending())
	if dim > 0 {
		fmt.Fprintf(c.App.Writer, "Dimension:       %d\n", dim)
	}
	return nil
}

// setupLogger installs a text handler on stderr at the --log-level level.
func setupLogger(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})))
	return nil
}

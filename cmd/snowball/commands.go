package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/batch"
	"github.com/agenthands/snowball/internal/core"
	"github.com/agenthands/snowball/internal/core/dedupe"
	"github.com/agenthands/snowball/internal/driver"
	"github.com/agenthands/snowball/internal/scopus"
	"github.com/agenthands/snowball/internal/server"
)

func newCrawlCommand(a *app) *cobra.Command {
	var (
		runLimit  int
		maxDist   int
		untilDone bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Resume the crawl at the first unfinished stage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("run-limit") {
				a.cfg.Crawl.RunLimit = runLimit
			}
			if cmd.Flags().Changed("max-dist") {
				a.cfg.Crawl.MaxDist = maxDist
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if a.cfg.Scopus.APIKey == "" {
				return errors.New("no Scopus API key: set SCOPUS_API_KEY or scopus.api_key")
			}

			client := scopus.NewClient(scopus.Options{
				BaseURL:           a.cfg.Scopus.BaseURL,
				APIKey:            a.cfg.Scopus.APIKey,
				RequestsPerSecond: a.cfg.Scopus.RequestsPerSecond,
				Timeout:           a.cfg.Scopus.Timeout.Duration,
				MaxElapsed:        a.cfg.Scopus.MaxElapsed.Duration,
				PageSize:          a.cfg.Scopus.PageSize,
				Logger:            a.log,
			})
			p := core.NewPipeline(a.wc, core.Fetchers{
				Coauthors: scopus.NewCoauthorFetcher(client),
				Metadata:  scopus.NewMetadataFetcher(client),
			}, core.Options{
				MaxDist: a.cfg.Crawl.MaxDist,
				Batch: batch.Options{
					RunLimit:   a.cfg.Crawl.RunLimit,
					FlushEvery: a.cfg.Crawl.FlushEvery,
					LogEvery:   a.cfg.Crawl.LogEvery,
				},
				Logger: a.log,
			})

			a.log.Info("run started", zap.String("workdir", a.wc.Root))
			for {
				res, err := p.Run(cmd.Context())
				if err != nil {
					return err
				}
				if res.Complete {
					fmt.Fprintln(cmd.OutOrStdout(), "Finished with all steps")
					return nil
				}
				if !untilDone {
					fmt.Fprintf(cmd.OutOrStdout(), "Not yet finished with all steps (stopped at %s)\n", res.Stage)
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVar(&runLimit, "run-limit", 0, "maximum items retrieved per batch run")
	cmd.Flags().IntVar(&maxDist, "max-dist", 0, "maximum hop distance from the seeds kept in the graph")
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "keep running batches until every stage has finished")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print stage progress and the active batch as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := core.Inspect(a.wc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newDupesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Find and collapse duplicate authors",
	}

	find := &cobra.Command{
		Use:   "find",
		Short: "Write candidate duplicate groups for manual review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, err := core.FindDuplicates(a.wc, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d candidate groups\n", len(groups))
			return nil
		},
	}

	var (
		file  string
		force bool
	)
	collapse := &cobra.Command{
		Use:   "collapse",
		Short: "Merge the reviewed duplicate groups into the final graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := core.CollapseDuplicates(a.wc, file, force, dedupe.NewDeduplicator(a.log))
			if report.Groups > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "merged %d of %d groups; %d nodes, %d edges\n",
					len(report.Merged), report.Groups, report.Nodes, report.Edges)
			}
			return err
		},
	}
	collapse.Flags().StringVar(&file, "file", "", "reviewed duplicates CSV (default <workdir>/dupes.csv)")
	collapse.Flags().BoolVar(&force, "force", false, "replace an existing collapsed graph")

	cmd.AddCommand(find, collapse)
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the final graph to external stores",
	}

	var reset bool
	memgraph := &cobra.Command{
		Use:   "memgraph",
		Short: "Write the graph to Memgraph or Neo4j over Bolt",
		Long:  "Write the latest graph to Memgraph or Neo4j over Bolt. Authors are merged on key; a collapsed graph always replaces the stored authors, as if --reset were given.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := driver.NewMemgraphDriver(cmd.Context(), a.cfg.Memgraph.URI, a.cfg.Memgraph.User, a.cfg.Memgraph.Password, a.log)
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Close(cmd.Context())
			}()

			e := driver.NewExporter(d, a.log)
			e.Reset = reset
			report, err := core.ExportGraph(cmd.Context(), a.wc, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d authors and %d edges\n", report.Authors, report.Edges)
			return nil
		},
	}
	memgraph.Flags().BoolVar(&reset, "reset", false, "delete existing Author nodes first")

	cmd.AddCommand(memgraph)
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve crawl status, duplicate candidates and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           server.NewServer(a.wc, a.log).SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Info("starting server", zap.String("listen", listen))
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

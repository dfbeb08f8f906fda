package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/process"
)

// stageFunc runs one stage for one data type and returns a summary line.
type stageFunc func(ctx context.Context, a *app, dt process.DataType) (string, error)

func stageCommand(use, short string, skipDerived bool, fn stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:       use + " [data-type...]",
		Short:     short,
		ValidArgs: process.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			keys, err := pipeline.OrderDataTypes(args)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			failed := 0
			for _, key := range keys {
				dt, _ := process.Get(key)
				if skipDerived && dt.Derived {
					continue
				}
				summary, err := fn(ctx, a, dt)
				if err != nil {
					failed++
					msg := pipeline.MapError(err)
					logging.WithFields(ctx, "data_type", key, "stage", use).
						Error("stage failed", "error", err, "code", msg.Code)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", key, pipeline.FormatUserError(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, summary)
			}
			if failed > 0 {
				return fmt.Errorf("%s failed for %d of %d data types", use, failed, len(keys))
			}
			return nil
		},
	}
}

var downloadCmd = stageCommand("download", "Extract raw records from the data mart", true,
	func(ctx context.Context, a *app, dt process.DataType) (string, error) {
		path, err := a.runner.Download(ctx, dt)
		if err != nil {
			return "", err
		}
		return "wrote " + path, nil
	})

var qualityCmd = stageCommand("quality", "Classify the data quality of raw records", false,
	func(ctx context.Context, a *app, dt process.DataType) (string, error) {
		report, err := a.runner.Quality(ctx, dt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d records %s, %d faults", report.Records, formatCounts(report.Counts), len(report.Faults)), nil
	})

var processCmd = stageCommand("process", "Apply drops and shape records for the portal", false,
	func(ctx context.Context, a *app, dt process.DataType) (string, error) {
		stats, err := a.runner.Process(ctx, dt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d in, %d out, dropped %s", stats.Input, stats.Output, formatCounts(stats.Dropped)), nil
	})

var uploadCmd = stageCommand("upload", "Replace the portal resource with the processed file", false,
	func(ctx context.Context, a *app, dt process.DataType) (string, error) {
		res, err := a.runner.Upload(ctx, dt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("uploaded %d bytes in %d chunks to %s", res.Size, res.Chunks, res.ResourceID), nil
	})

var runCmd = stageCommand("run", "Run every stage for the given data types", false,
	func(ctx context.Context, a *app, dt process.DataType) (string, error) {
		rec, err := a.runner.Run(ctx, dt.Key)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s run %s: %d records, %d exported, uploaded=%t",
			rec.Status, rec.ID, rec.Records, rec.Exported, rec.Uploaded), nil
	})

// formatCounts renders a count map in key order.
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %d", k, counts[k])
	}
	return out + "}"
}

var tablesColumns []string

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the code tables the quality engine uses",
	Long: `Prints the loaded code tables as YAML, in the same layout accepted by
PIPELINE_CODE_TABLES. --column limits the output to the named columns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := loadCodeTables(cfg.Pipeline.CodeTables)
		if err != nil {
			return err
		}

		type table struct {
			Codes map[string]int `yaml:"codes"`
		}
		doc := struct {
			Version string           `yaml:"version"`
			Tables  map[string]table `yaml:"tables"`
		}{Version: tables.Version(), Tables: map[string]table{}}

		for _, col := range tables.Columns() {
			if len(tablesColumns) > 0 && !slices.Contains(tablesColumns, col) {
				continue
			}
			doc.Tables[col] = table{Codes: tables.Table(col).Codes()}
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	},
}

var dataTypesCmd = &cobra.Command{
	Use:   "datatypes",
	Short: "List the registered data types",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTABLE\tASSESSED\tDERIVED\tEXPORT")
		for _, dt := range process.All() {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", dt.Key, dt.Table, dt.Assess, dt.Derived, dt.ExportName)
		}
		return tw.Flush()
	},
}

func init() {
	tablesCmd.Flags().StringSliceVar(&tablesColumns, "column", nil, "only print these columns")
}

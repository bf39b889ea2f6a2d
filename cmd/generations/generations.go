// Package generations provides commands for browsing the generation history
package generations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/iconforge/internal/app"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/generation"
	"github.com/tphakala/iconforge/internal/logger"
)

// History is the part of generation.Service used by these commands
type History interface {
	GetByID(ctx context.Context, id string) (*datastore.ImageGeneration, error)
	List(ctx context.Context, filters datastore.GenerationFilters) (generation.Page, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, userID string) (datastore.GenerationStats, error)
}

// maxPageSize matches the API limit
const maxPageSize = 100

// listOptions holds the list command flags
type listOptions struct {
	page     int
	pageSize int
	userID   string
	status   string
	asJSON   bool
}

// Command creates the generations command and its subcommands
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generations",
		Aliases: []string{"history"},
		Short:   "Browse and manage the generation history",
	}

	cmd.AddCommand(
		listCommand(settings),
		getCommand(settings),
		deleteCommand(settings),
		statsCommand(settings),
	)

	return cmd
}

// withHistory opens the history service for the duration of fn
func withHistory(settings *conf.Settings, fn func(History) error) error {
	a := app.New(settings, logger.Global().Module("main"))
	defer func() { _ = a.Close() }()

	svc, err := a.OpenHistory()
	if err != nil {
		return err
	}
	return fn(svc)
}

func listCommand(settings *conf.Settings) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generation records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := opts.filters()
			if err != nil {
				return err
			}
			return withHistory(settings, func(h History) error {
				return runList(cmd.Context(), cmd.OutOrStdout(), h, filters, opts.asJSON)
			})
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", generation.DefaultPageSize, "Records per page (max 100)")
	cmd.Flags().StringVar(&opts.userID, "user", "", "Only records of this user")
	cmd.Flags().StringVar(&opts.status, "status", "", "Only records with this status (success, failed, pending)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

// filters validates the flags and converts them to repository filters
func (o *listOptions) filters() (datastore.GenerationFilters, error) {
	if o.page < 1 {
		return datastore.GenerationFilters{}, errors.ValidationError("Page must be a positive integer")
	}
	if o.pageSize < 1 || o.pageSize > maxPageSize {
		return datastore.GenerationFilters{}, errors.ValidationError("Page size must be between 1 and 100")
	}
	if o.status != "" && !slices.Contains(datastore.ValidStatuses, o.status) {
		return datastore.GenerationFilters{}, errors.ValidationError(
			"Status must be one of: " + strings.Join(datastore.ValidStatuses, ", "))
	}

	return datastore.GenerationFilters{
		UserID: o.userID,
		Status: o.status,
		Limit:  o.pageSize,
		Offset: (o.page - 1) * o.pageSize,
	}, nil
}

func runList(ctx context.Context, out io.Writer, h History, filters datastore.GenerationFilters, asJSON bool) error {
	page, err := h.List(ctx, filters)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, page.Data)
	}
	if page.Total == 0 {
		fmt.Fprintln(out, "No generations found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tTIME\tPROMPT")
	for i := range page.Data {
		g := &page.Data[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
			g.ID, g.CreatedAt.Local().Format(time.DateTime), g.Status, g.GenerationTimeMs,
			logger.Truncate(g.Prompt, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	totalPages := (page.Total + int64(page.PageSize) - 1) / int64(page.PageSize)
	fmt.Fprintf(out, "\nPage %d of %d, %d records\n", page.Page, totalPages, page.Total)
	return nil
}

func getCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one generation record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(settings, func(h History) error {
				record, err := h.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a generation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(settings, func(h History) error {
				if err := h.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Generation deleted successfully")
				return nil
			})
		},
	}
}

func statsCommand(settings *conf.Settings) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the generation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(settings, func(h History) error {
				return runStats(cmd.Context(), cmd.OutOrStdout(), h, userID)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Only records of this user")

	return cmd
}

func runStats(ctx context.Context, out io.Writer, h History, userID string) error {
	stats, err := h.Stats(ctx, userID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", stats.Total)
	fmt.Fprintf(tw, "Successful\t%d\n", stats.Successful)
	fmt.Fprintf(tw, "Failed\t%d\n", stats.Failed)
	fmt.Fprintf(tw, "Average time\t%.0fms\n", stats.AverageGenerationTimeMs)
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

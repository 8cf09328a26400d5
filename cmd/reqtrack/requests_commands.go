package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/requests"
)

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "Inspect and moderate media requests",
	}
	cmd.AddCommand(newRequestsListCommand(ctx))
	cmd.AddCommand(newRequestsShowCommand(ctx))
	cmd.AddCommand(newRequestsCreateCommand(ctx))
	cmd.AddCommand(newRequestsSetStatusCommand(ctx))
	cmd.AddCommand(newRequestsStatsCommand(ctx))
	return cmd
}

func newRequestsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		userFlag   string
		page       int
		limit      int
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := requests.Filter{RequesterID: strings.TrimSpace(userFlag), Page: page, PageSize: limit}
			if statusFlag != "" {
				status, ok := requests.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (valid: %s)", statusFlag, statusNames())
				}
				filter.Status = status
			}
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				result, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if len(result.Items) == 0 {
					fmt.Fprintln(out, "No requests found")
					return nil
				}
				fmt.Fprintln(out, renderRequestTable(result.Items, shouldColorize(out)))
				fmt.Fprintf(out, "Page %d of %d (%d total)\n", result.Page, max(result.TotalPages, 1), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show requests with this status")
	cmd.Flags().StringVar(&userFlag, "user", "", "Only show requests from this user id")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (defaults to requests.default_page_size)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderRequestTable(items []*requests.Request, colorize bool) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			item.Media.MediaType,
			strconv.FormatInt(item.Media.CatalogID, 10),
			item.RequesterName,
			requestStatusLabel(item.Status, colorize),
			formatTimestamp(item.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Type", "Catalog", "Requester", "Status", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
}

func newRequestsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request and its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				req, history, err := store.Detail(cmd.Context(), id)
				if err != nil {
					return describeStoreError(err)
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{"request": req, "history": history})
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Request #%d: %s\n", req.ID, req.Title)
				fmt.Fprintf(out, "  Media:      %s %d\n", req.Media.MediaType, req.Media.CatalogID)
				fmt.Fprintf(out, "  Requester:  %s (%s)\n", req.RequesterName, req.RequesterID)
				fmt.Fprintf(out, "  Status:     %s\n", requestStatusLabel(req.Status, colorize))
				if req.AdminNote != "" {
					fmt.Fprintf(out, "  Note:       %s\n", req.AdminNote)
				}
				fmt.Fprintf(out, "  Created:    %s\n", formatTimestamp(req.CreatedAt))
				fmt.Fprintf(out, "  Updated:    %s\n\n", formatTimestamp(req.UpdatedAt))

				rows := make([][]string, 0, len(history))
				for _, entry := range history {
					from := "-"
					if entry.OldStatus != "" {
						from = requestStatusLabel(entry.OldStatus, colorize)
					}
					rows = append(rows, []string{
						formatTimestamp(entry.CreatedAt),
						from,
						requestStatusLabel(entry.NewStatus, colorize),
						entry.ChangedBy,
						entry.Note,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"When", "From", "To", "By", "Note"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newRequestsCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		userID    string
		userName  string
		catalogID int64
		mediaType string
		title     string
		poster    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending request on behalf of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				ref := requests.MediaRef{CatalogID: catalogID, MediaType: mediaType}
				if existing, err := store.FindOpenForMedia(cmd.Context(), ref, userID); err == nil {
					return fmt.Errorf("user %s already has open request #%d for this title", userID, existing.ID)
				} else if !errors.Is(err, requests.ErrNotFound) {
					return err
				}
				req, err := store.Create(cmd.Context(), requests.NewRequest{
					RequesterID:   userID,
					RequesterName: userName,
					Media:         ref,
					Title:         title,
					PosterRef:     poster,
				})
				if err != nil {
					return describeStoreError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created request #%d (%s)\n", req.ID, req.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Requester user id")
	cmd.Flags().StringVar(&userName, "name", "", "Requester display name")
	cmd.Flags().Int64Var(&catalogID, "catalog-id", 0, "Catalog (TMDB) id")
	cmd.Flags().StringVar(&mediaType, "type", "movie", "Media type")
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&poster, "poster", "", "Poster reference")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("catalog-id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRequestsSetStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		note string
		by   string
	)
	cmd := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Change a request's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			status, ok := requests.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q (valid: %s)", args[1], statusNames())
			}
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				req, err := store.Transition(cmd.Context(), id, status, by, note)
				if err != nil {
					return describeStoreError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Request #%d is now %s\n", req.ID, req.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Admin note shown to the requester")
	cmd.Flags().StringVar(&by, "by", "cli", "Actor recorded in the request history")
	return cmd
}

func newRequestsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show request counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(summary.ByStatus)+1)
				for _, status := range requests.AllStatuses() {
					rows = append(rows, []string{requestStatusLabel(status, colorize), strconv.Itoa(summary.ByStatus[status])})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(summary.Total)})
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func parseRequestID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", raw)
	}
	return id, nil
}

func statusNames() string {
	names := make([]string, 0, 4)
	for _, status := range requests.AllStatuses() {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

// describeStoreError rewrites classified store errors for terminal output.
func describeStoreError(err error) error {
	switch requests.ErrorKind(err) {
	case "not_found":
		return fmt.Errorf("%v (check the id with `reqtrack requests list`)", err)
	case "conflict":
		return fmt.Errorf("%v (the transition policy refused this change)", err)
	default:
		return err
	}
}

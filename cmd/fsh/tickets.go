package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/app"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

func ticketCmd() *cobra.Command {
	t := &cobra.Command{Use: "ticket", Short: "Work with service tickets as --actor-id"}
	t.AddCommand(ticketListCmd())
	t.AddCommand(ticketShowCmd())
	t.AddCommand(ticketCreateCmd())
	t.AddCommand(ticketStatusCmd())
	t.AddCommand(ticketDeleteCmd())
	t.AddCommand(ticketStatsCmd())
	t.AddCommand(ticketLogCmd())
	return t
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func ticketListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tickets, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.TicketFilters{Limit: limit}
			if status != "" {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListTickets(ctx, actorID(), f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Owner", "Status", "Total", "Created"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.OwnerUserID, t.Status.Label(), formatCents(t.TotalAmount), t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show a ticket with its line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.GetTicket(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s  %s\n", t.ID, t.Title)
				fmt.Printf("owner: %s  status: %s\n", t.OwnerUserID, t.Status.Label())
				fmt.Printf("work: %s -> %s\n", t.WorkStartDate, t.WorkEndDate)
				fmt.Printf("rate: %s  total: %s\n", formatCents(t.HourlyRate), formatCents(t.TotalAmount))
				if t.AdminNotes != nil {
					fmt.Printf("admin notes: %s\n", *t.AdminNotes)
				}
				if len(t.LineItems) == 0 {
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Hours", "Rate", "Total"})
				for _, li := range t.LineItems {
					tw.AppendRow(table.Row{li.ID, li.Description, li.Hours, formatCents(li.HourlyRate), formatCents(li.TotalAmount)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func readAttachment(path string) (storage.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return storage.File{}, err
	}
	f := storage.File{Filename: filepath.Base(path), Data: data}
	f.ContentType = f.DetectContentType()
	return f, nil
}

func readAttachments(paths []string) ([]storage.File, error) {
	out := make([]storage.File, 0, len(paths))
	for _, p := range paths {
		f, err := readAttachment(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func ticketCreateCmd() *cobra.Command {
	var in engine.CreateTicketInput
	var before, after []string
	var invoice string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket owned by --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.BeforePhotos, err = readAttachments(before); err != nil {
				return err
			}
			if in.AfterPhotos, err = readAttachments(after); err != nil {
				return err
			}
			if invoice != "" {
				f, err := readAttachment(invoice)
				if err != nil {
					return err
				}
				in.Invoice = &f
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.CreateTicket(ctx, actorID(), in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("created %s (%s)\n", t.ID, t.Status.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "ticket title")
	cmd.Flags().StringVar(&in.Description, "description", "", "work description")
	cmd.Flags().StringVar(&in.WorkStartDate, "start", "", "work start (RFC3339)")
	cmd.Flags().StringVar(&in.WorkEndDate, "end", "", "work end (RFC3339)")
	cmd.Flags().Int64Var(&in.HourlyRate, "rate", 0, "hourly rate in cents")
	cmd.Flags().Int64Var(&in.TotalAmount, "total", 0, "total in cents, ignored when line items are given")
	cmd.Flags().StringVar(&in.InvoiceNumber, "invoice-number", "", "invoice number")
	cmd.Flags().StringArrayVar(&before, "before", nil, "before photo file (repeatable)")
	cmd.Flags().StringArrayVar(&after, "after", nil, "after photo file (repeatable)")
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice file")
	cmd.Flags().BoolVar(&in.Submit, "submit", false, "create directly in submitted")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func ticketStatusCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <ticket-id> <status>",
		Short: "Move a ticket to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.ChangeStatusInput{Status: domain.Status(args[1])}
			if cmd.Flags().Changed("notes") {
				in.AdminNotes = &notes
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.ChangeStatus(ctx, actorID(), args[0], in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s is %s\n", t.ID, t.Status.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "admin notes stored with the change")
	return cmd
}

func ticketDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <ticket-id>",
		Short: "Delete a ticket and its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.DeleteTicket(ctx, actorID(), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func ticketStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count visible tickets by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				counts, err := rt.Engine.TicketStats(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				total := 0
				for _, s := range domain.Statuses {
					tw.AppendRow(table.Row{s.Label(), counts[s]})
					total += counts[s]
				}
				tw.AppendFooter(table.Row{"Total", total})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ticketLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log <ticket-id>",
		Short: "Show the event history of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				evs, err := rt.Engine.TicketEvents(ctx, actorID(), args[0], 0, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Actor", "Payload"})
				for _, ev := range evs {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

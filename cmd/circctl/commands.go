package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/config"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/jwt"
	"libraryhub/internal/pkg/pagination"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02 15:04"

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire reservations whose hold window has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.runtime()
			if err != nil {
				return err
			}
			now := services.SystemClock()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			result, err := rt.services.Reservations.SweepExpired(cmd.Context(), now.UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, expired %d, failed %d\n",
				result.Checked, result.Expired, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Sweep as of this RFC3339 time instead of now")
	return cmd
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the policy's member tiers that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.runtime()
			if err != nil {
				return err
			}
			seeder := config.NewSeeder(rt.db, rt.policy)
			if demo {
				return seeder.Run(cmd.Context(), true)
			}
			created, err := seeder.SeedTiers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tier(s) created\n", created)
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "Also create one demo member per tier")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue <work-id>",
		Short: "Show the reservation queue of a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := ctx.runtime()
			if err != nil {
				return err
			}
			queue, err := rt.services.Reservations.Queue(cmd.Context(), workID)
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Reservation", "Member", "Priority", "Copy", "Reserved", "Expires", "Notified"},
				queueRows(queue),
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}))
			return nil
		},
	}
}

func queueRows(queue []services.QueueEntry) [][]string {
	rows := make([][]string, 0, len(queue))
	for _, q := range queue {
		r := q.Reservation
		notified := "no"
		if r.NotificationSent {
			notified = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(q.Position),
			formatID(r.ID),
			formatID(r.MemberID),
			strconv.Itoa(r.PriorityLevel),
			formatOptionalID(r.CopyID),
			r.ReservationDate.Format(dateLayout),
			r.ExpiryDate.Format(dateLayout),
			notified,
		})
	}
	return rows
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "history <member-id>",
		Short: "Show a member's borrowing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := ctx.runtime()
			if err != nil {
				return err
			}
			params := pagination.NewParams(page, limit)
			entries, total, err := rt.services.History.List(cmd.Context(), memberID, params.Offset, params.Limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Seq", "Type", "Work", "Copy", "Date", "Due", "Returned", "Status", "Fine"},
				historyRows(entries),
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			meta := pagination.GetMeta(params, total)
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d entries)\n", meta.Page, meta.TotalPages, meta.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", pagination.DefaultLimit, "Entries per page")
	return cmd
}

func historyRows(entries []models.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Seq),
			string(e.EntryType),
			formatID(e.WorkID),
			formatOptionalID(e.CopyID),
			e.TransactionDate.Format(dateLayout),
			formatOptionalTime(e.DueDate),
			formatOptionalTime(e.ReturnDate),
			string(e.Status),
			e.FineAmount.StringFixed(2),
		})
	}
	return rows
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		memberID uint
		name     string
		role     string
		minutes  int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(strings.ToUpper(strings.TrimSpace(role)))
			switch r {
			case domain.RoleMember, domain.RoleStaff, domain.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q (want MEMBER, STAFF or ADMIN)", role)
			}
			if r == domain.RoleMember && memberID == 0 {
				return fmt.Errorf("--member is required for MEMBER tokens")
			}
			rt, err := ctx.runtime()
			if err != nil {
				return err
			}
			if minutes <= 0 {
				minutes = rt.cfg.JWT.AccessTokenMins
			}
			token, err := jwt.GenerateAccessToken(memberID, name, string(r), rt.cfg.JWT.Secret, minutes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&memberID, "member", 0, "Member id the token acts as")
	cmd.Flags().StringVar(&name, "name", "circctl", "Display name in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "MEMBER, STAFF or ADMIN")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Lifetime in minutes (default from config)")
	return cmd
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func formatOptionalID(id *uint) string {
	if id == nil {
		return "-"
	}
	return formatID(*id)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agenda-service/internal/agenda"
	"agenda-service/internal/present"
)

func CalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Show a month of the agenda with busy shifts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := ""
			if len(args) == 1 {
				month = args[0]
			}
			year, mon, err := parseMonth(month, time.Now())
			if err != nil {
				return err
			}
			technician, _ := cmd.Flags().GetString("technician")

			s, err := openSession(cmd, agenda.Query{
				TechnicianID: technician,
				From:         agenda.Date{Year: year, Month: mon, Day: 1},
				To:           agenda.Date{Year: year, Month: mon, Day: agenda.DaysIn(year, mon)},
			})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			present.RenderMonth(out, s.calendar.Month(cmd.Context(), s.technician(technician), year, mon))
			fmt.Fprintln(out)
			present.RenderEntries(out, s.calendar.Entries())
			return nil
		},
	}
	cmd.Flags().StringP("technician", "t", "", "Technician agenda to show (administrators)")
	return cmd
}

func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agenda records",
		RunE: func(cmd *cobra.Command, args []string) error {
			fleet, _ := cmd.Flags().GetBool("fleet")
			technician, _ := cmd.Flags().GetString("technician")
			responsible, _ := cmd.Flags().GetString("responsible")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			ids, _ := cmd.Flags().GetInt64Slice("ids")
			all, _ := cmd.Flags().GetBool("all")

			q := agenda.Query{Fleet: fleet, TechnicianID: technician, IDs: ids, IncludeSuperseded: all}
			var err error
			if from != "" {
				if q.From, err = parseDate(from); err != nil {
					return err
				}
			}
			if to != "" {
				if q.To, err = parseDate(to); err != nil {
					return err
				}
			}

			s, err := openSession(cmd, q)
			if err != nil {
				return err
			}
			defer s.Close()

			list := present.NewList(s.engine.Agenda())
			defer list.Close()
			if responsible != "" {
				if err := list.SetResponsible(cmd.Context(), responsible); err != nil {
					return err
				}
			}
			present.RenderRows(cmd.OutOrStdout(), list.Rows())
			return nil
		},
	}
	cmd.Flags().Bool("fleet", false, "List every technician's agenda (administrators)")
	cmd.Flags().StringP("technician", "t", "", "Technician agenda to list (administrators)")
	cmd.Flags().StringP("responsible", "r", "", "Filter visits by responsible person")
	cmd.Flags().String("from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().Int64Slice("ids", nil, "Only these record ids")
	cmd.Flags().Bool("all", false, "Include visits that were rescheduled away")
	return cmd
}

// parseMonth reads "YYYY-MM"; empty means the month of now.
func parseMonth(s string, now time.Time) (int, time.Month, error) {
	if s == "" {
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month must be YYYY-MM, got %q", agenda.ErrValidation, s)
	}
	return t.Year(), t.Month(), nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agenda-service/internal/agenda"
	"agenda-service/internal/present"
)

func VisitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Schedule, reschedule and check visits",
	}
	cmd.AddCommand(
		visitCreateCmd(),
		visitRescheduleCmd(),
		visitDeleteCmd(),
		visitLineageCmd(),
		visitCheckCmd(),
		visitReportCmd(),
	)
	return cmd
}

func shiftFlag(cmd *cobra.Command) (agenda.Shift, error) {
	raw, _ := cmd.Flags().GetString("shift")
	if raw == "" {
		return "", nil
	}
	return agenda.ParseShift(raw)
}

func visitCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a visit (administrators)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := agenda.VisitInput{}
			in.TechnicianID, _ = cmd.Flags().GetString("technician")
			in.Title, _ = cmd.Flags().GetString("title")
			in.Description, _ = cmd.Flags().GetString("description")
			in.UnitName, _ = cmd.Flags().GetString("unit")
			in.SectorName, _ = cmd.Flags().GetString("sector")
			in.ResponsibleName, _ = cmd.Flags().GetString("responsible")
			in.AllDay, _ = cmd.Flags().GetBool("all-day")
			rawDate, _ := cmd.Flags().GetString("date")
			var err error
			if in.Date, err = parseDate(rawDate); err != nil {
				return err
			}
			if in.Shift, err = shiftFlag(cmd); err != nil {
				return err
			}

			s, err := openSession(cmd, agenda.Query{TechnicianID: in.TechnicianID})
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.api.CreateVisit(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Scheduled %s: %s on %s for %s\n",
				rec.Ref(), present.EntryTitle(rec), rec.Date, rec.TechnicianID)
			return nil
		},
	}
	cmd.Flags().StringP("technician", "t", "", "Technician")
	cmd.Flags().String("title", "", "Title (defaults to the unit)")
	cmd.Flags().StringP("date", "d", "", "Date (YYYY-MM-DD)")
	cmd.Flags().StringP("shift", "s", "", "Shift: morning or afternoon")
	cmd.Flags().Bool("all-day", false, "Takes the whole day")
	cmd.Flags().String("description", "", "Description")
	cmd.Flags().String("unit", "", "Unit name")
	cmd.Flags().String("sector", "", "Sector name")
	cmd.Flags().String("responsible", "", "Responsible person")
	return cmd
}

func visitRescheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reschedule <visit> <YYYY-MM-DD>",
		Short: "Move a visit to another date",
		Long: `Move a visit to another date. <visit> is "visit#ID", "rescheduled#ID" or a
bare visit id. Only the latest record of a reschedule chain can be moved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindVisit)
			if err != nil {
				return err
			}
			date, err := parseDate(args[1])
			if err != nil {
				return err
			}
			shift, err := shiftFlag(cmd)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")

			s, err := openSession(cmd, agenda.Query{})
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.record(cmd.Context(), ref)
			if err != nil {
				return err
			}
			intent := present.DropEntry(entry, date)
			if intent.Action != present.ActionRescheduleVisit {
				return fmt.Errorf("%w: %s is not a visit\nHint: use agendactl event update --date", agenda.ErrValidation, ref)
			}
			rec, err := s.calendar.Dispatch(cmd.Context(), intent, present.Details{Shift: shift, Reason: reason})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rescheduled %s to %s: %s on %s\n",
				ref, rec.Ref(), present.EntryTitle(rec), rec.Date)
			return nil
		},
	}
	cmd.Flags().StringP("shift", "s", "", "Target shift (defaults to the current one)")
	cmd.Flags().String("reason", "", "Reason for the change")
	return cmd
}

func visitDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <visit>",
		Short: "Delete a visit and its reschedule chain",
		Long: `Delete a visit and its reschedule chain. Any record of the chain may be
named; the original visit and every reschedule of it are removed together.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindVisit)
			if err != nil {
				return err
			}
			return deleteRecord(cmd, ref)
		},
	}
}

func visitLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <visit>",
		Short: "Show the reschedule chain of a visit, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindVisit)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, agenda.Query{})
			if err != nil {
				return err
			}
			defer s.Close()

			chain, err := s.api.Lineage(cmd.Context(), ref)
			if err != nil {
				return err
			}
			present.RenderRows(cmd.OutOrStdout(), present.Rows(chain))
			return nil
		},
	}
}

func visitCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <YYYY-MM-DD>",
		Short: "Check whether a shift is free for a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			shift, err := shiftFlag(cmd)
			if err != nil {
				return err
			}
			technician, _ := cmd.Flags().GetString("technician")
			allDay, _ := cmd.Flags().GetBool("all-day")
			req := agenda.SlotRequest{Date: date, Shift: shift, AllDay: allDay}
			if exclude, _ := cmd.Flags().GetString("exclude"); exclude != "" {
				ref, err := parseRef(exclude, agenda.KindVisit)
				if err != nil {
					return err
				}
				req.Exclude = &ref
			}

			s, err := openSession(cmd, agenda.Query{TechnicianID: technician})
			if err != nil {
				return err
			}
			defer s.Close()
			req.TechnicianID = s.technician(technician)

			res, err := s.engine.Validator().CheckAvailability(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case res.Degraded:
				present.RenderNotice(out, present.Notice{
					Level:   present.LevelWarning,
					Message: "Availability could not be checked. The service checks again when the visit is saved.",
				})
			case res.Blocked:
				present.RenderNotice(out, present.NoticeFor(res.Err()))
			default:
				fmt.Fprintf(out, "✓ %s on %s is free\n", agenda.NormalizeShift(req.Shift).Label(), date)
			}
			return nil
		},
	}
	cmd.Flags().StringP("shift", "s", "", "Shift: morning or afternoon")
	cmd.Flags().StringP("technician", "t", "", "Technician (administrators)")
	cmd.Flags().Bool("all-day", false, "Check both shifts")
	cmd.Flags().String("exclude", "", "Visit being moved, never blocks itself")
	return cmd
}

func visitReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <visit-id> <YYYY-MM-DD>",
		Short: "Check that a visit report may be filed for a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindVisit)
			if err != nil {
				return err
			}
			if ref.Kind != agenda.KindVisit {
				return fmt.Errorf("%w: reports are filed against the original visit id", agenda.ErrValidation)
			}
			date, err := parseDate(args[1])
			if err != nil {
				return err
			}
			shift, err := shiftFlag(cmd)
			if err != nil {
				return err
			}

			s, err := openSession(cmd, agenda.Query{})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.api.ValidateReport(cmd.Context(), ref.ID, date, shift); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Report for %s on %s can be submitted\n", ref, date)
			return nil
		},
	}
	cmd.Flags().StringP("shift", "s", "", "Shift: morning or afternoon")
	return cmd
}

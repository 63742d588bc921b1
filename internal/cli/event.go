package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agenda-service/internal/agenda"
	"agenda-service/internal/present"
)

func EventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Create, edit and delete events",
	}
	cmd.AddCommand(eventCreateCmd(), eventUpdateCmd(), eventDeleteCmd())
	return cmd
}

func eventDetails(cmd *cobra.Command) (present.Details, error) {
	var d present.Details
	d.TechnicianID, _ = cmd.Flags().GetString("technician")
	d.Title, _ = cmd.Flags().GetString("title")
	d.ClientName, _ = cmd.Flags().GetString("client")
	if cmd.Flags().Changed("description") {
		desc, _ := cmd.Flags().GetString("description")
		d.Description = &desc
	}
	if cmd.Flags().Changed("all-day") {
		allDay, _ := cmd.Flags().GetBool("all-day")
		d.AllDay = &allDay
	}
	if shift, _ := cmd.Flags().GetString("shift"); shift != "" {
		s, err := agenda.ParseShift(shift)
		if err != nil {
			return d, err
		}
		d.Shift = s
	}
	return d, nil
}

func addEventFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Title")
	cmd.Flags().StringP("date", "d", "", "Date (YYYY-MM-DD)")
	cmd.Flags().StringP("shift", "s", "", "Shift: morning or afternoon")
	cmd.Flags().Bool("all-day", false, "Takes the whole day (--all-day=false clears it)")
	cmd.Flags().String("description", "", "Description (an empty value clears it)")
	cmd.Flags().String("client", "", "Client name")
}

func eventCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := eventDetails(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				d.Title = args[0]
			}
			rawDate, _ := cmd.Flags().GetString("date")
			date, err := parseDate(rawDate)
			if err != nil {
				return err
			}

			s, err := openSession(cmd, agenda.Query{TechnicianID: d.TechnicianID})
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.calendar.Dispatch(cmd.Context(), present.SelectDate(date), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s: %s on %s\n", rec.Ref(), present.EntryTitle(rec), rec.Date)
			return nil
		},
	}
	addEventFlags(cmd)
	cmd.Flags().StringP("technician", "t", "", "Owning technician (administrators)")
	return cmd
}

func eventUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <event-id>",
		Short: "Edit an event; --date moves it to another day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindEvent)
			if err != nil {
				return err
			}
			d, err := eventDetails(cmd)
			if err != nil {
				return err
			}

			s, err := openSession(cmd, agenda.Query{})
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.record(cmd.Context(), ref)
			if err != nil {
				return err
			}
			intent := present.ClickEntry(entry)
			if rawDate, _ := cmd.Flags().GetString("date"); rawDate != "" {
				date, err := parseDate(rawDate)
				if err != nil {
					return err
				}
				intent = present.DropEntry(entry, date)
			}
			if intent.Action != present.ActionEditEvent {
				return fmt.Errorf("%w: %s is not an event\nHint: use agendactl visit reschedule", agenda.ErrValidation, ref)
			}

			rec, err := s.calendar.Dispatch(cmd.Context(), intent, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s: %s on %s\n", rec.Ref(), present.EntryTitle(rec), rec.Date)
			return nil
		},
	}
	addEventFlags(cmd)
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], agenda.KindEvent)
			if err != nil {
				return err
			}
			return deleteRecord(cmd, ref)
		},
	}
}

// deleteRecord removes ref through the calendar adapter. A record that is
// already gone still refreshes the agenda and reports a notice.
func deleteRecord(cmd *cobra.Command, ref agenda.RecordRef) error {
	s, err := openSession(cmd, agenda.Query{})
	if err != nil {
		return err
	}
	defer s.Close()

	entry := present.CalendarEntry{
		ID:     ref.String(),
		Record: agenda.Record{Kind: ref.Kind, ReferenceID: ref.ID},
	}
	if _, err := s.calendar.Dispatch(cmd.Context(), present.DeleteEntry(entry), present.Details{}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", ref)
	return nil
}

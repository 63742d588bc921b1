package present

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"agenda-service/internal/scheduling"
)

var (
	colorByKey = map[ColorKey]*color.Color{
		ColorEvent:       color.New(color.FgCyan),
		ColorVisit:       color.New(color.FgGreen),
		ColorRescheduled: color.New(color.FgMagenta),
	}
	busyFull  = color.New(color.FgRed, color.Bold)
	busyHalf  = color.New(color.FgYellow)
	free      = color.New(color.Faint)
	noticeFor = map[Level]*color.Color{
		LevelInfo:    color.New(color.FgBlue),
		LevelWarning: color.New(color.FgYellow),
		LevelError:   color.New(color.FgRed),
	}
)

// RenderMonth prints a month grid. Each day is marked with its busy shifts:
// "M" morning, "A" afternoon, "##" the whole day.
func RenderMonth(w io.Writer, m scheduling.MonthAvailability) {
	title := fmt.Sprintf("%s %d", m.Month, m.Year)
	fmt.Fprintf(w, "%*s\n", 14+len(title)/2, title)
	fmt.Fprintln(w, " Mo    Tu    We    Th    Fr    Sa    Su")
	if m.Err != nil {
		fmt.Fprintln(w, busyHalf.Sprint("  availability unavailable: ", m.Err))
	}

	first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(first.Weekday()) + 6) % 7
	fmt.Fprint(w, strings.Repeat("      ", offset))

	days := time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	for day := 1; day <= days; day++ {
		var cell string
		if day-1 < len(m.Days) {
			d := m.Days[day-1]
			switch {
			case d.FullDayBusy:
				cell = busyFull.Sprintf("%3d##", day)
			case d.MorningBusy:
				cell = busyHalf.Sprintf("%3dM ", day)
			case d.AfternoonBusy:
				cell = busyHalf.Sprintf("%3d A", day)
			default:
				cell = free.Sprintf("%3d  ", day)
			}
		} else {
			cell = fmt.Sprintf("%3d  ", day)
		}
		fmt.Fprint(w, cell, " ")
		if (offset+day)%7 == 0 {
			fmt.Fprintln(w)
		}
	}
	if (offset+days)%7 != 0 {
		fmt.Fprintln(w)
	}
}

// RenderEntries prints calendar entries, one per line, coloured by kind.
func RenderEntries(w io.Writer, entries []CalendarEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	for _, e := range entries {
		c, ok := colorByKey[e.ColorKey]
		if !ok {
			c = color.New(color.Reset)
		}
		fmt.Fprintf(w, "%s  %-16s %s\n", e.Start, c.Sprint(e.ID), e.Title)
	}
}

// RenderRows prints list rows as a table.
func RenderRows(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tDATE\tSHIFT\tTITLE\tTECHNICIAN\tRESPONSIBLE\tNOTE")
	for _, r := range rows {
		shift := string(r.Shift)
		if r.AllDay {
			shift = "ALL DAY"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Ref, r.Date, shift, r.Title, r.TechnicianID, r.Responsible, r.Note)
	}
	tw.Flush()
}

// RenderNotice prints a notice; a zero notice prints nothing.
func RenderNotice(w io.Writer, n Notice) {
	if n.Message == "" {
		return
	}
	fmt.Fprintln(w, noticeFor[n.Level].Sprint(n.Message))
}

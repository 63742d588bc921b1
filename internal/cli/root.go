// Package cli is the agendactl command tree. Every command talks to the
// agenda service through the scheduling engine and renders with the
// presentation adapters.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"agenda-service/internal/agenda"
	"agenda-service/internal/client"
	"agenda-service/internal/config"
	"agenda-service/internal/present"
	"agenda-service/internal/scheduling"
)

// RootCmd builds the agendactl command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agendactl",
		Short: "Field services agenda client",
		Long: `agendactl reads and changes technician agendas held by the agenda service:
calendar and list views, events, visit reschedules and report checks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to config file (defaults to the user config dir)")
	root.PersistentFlags().String("server", "", "Agenda service URL (overrides config)")
	root.PersistentFlags().String("token", "", "Bearer token (overrides config)")

	root.AddCommand(CalendarCmd())
	root.AddCommand(ListCmd())
	root.AddCommand(EventCmd())
	root.AddCommand(VisitCmd())
	root.AddCommand(LoginCmd())
	root.AddCommand(TokenCmd())
	root.AddCommand(WhoamiCmd())
	return root
}

func configPath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies the connection flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		cfg.Client.ServerURL = strings.TrimRight(s, "/")
	}
	if t, _ := cmd.Flags().GetString("token"); t != "" {
		cfg.Client.Token = t
	}
	return cfg, nil
}

// session is one command's view of the service.
type session struct {
	api      *client.Client
	me       agenda.Principal
	engine   *scheduling.Engine
	calendar *present.Calendar
}

// openSession resolves the caller and loads the agenda selected by q. An
// empty technician on q reads the caller's own agenda.
func openSession(cmd *cobra.Command, q agenda.Query) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Client.Token == "" {
		return nil, fmt.Errorf("no token configured\nHint: run agendactl login --token <token>")
	}
	ctx := cmd.Context()
	api := client.New(cfg.Client.ServerURL, cfg.Client.Token, cfg.Client.Timeout)
	me, err := api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if !q.Fleet && q.TechnicianID == "" {
		q.TechnicianID = me.TechnicianID
	}

	store := scheduling.NewAgendaStore(api, q)
	engine := scheduling.NewEngine(api, scheduling.NewValidator(api, api), scheduling.NewAggregator(api), store)
	if err := engine.Refresh(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &session{api: api, me: me, engine: engine, calendar: present.NewCalendar(engine)}, nil
}

func (s *session) Close() {
	s.calendar.Close()
	s.engine.Agenda().Close()
}

// technician returns the agenda owner a command acts on.
func (s *session) technician(flag string) string {
	if flag != "" {
		return flag
	}
	return s.me.TechnicianID
}

// record loads ref; commands act on fresh copies, not on cached entries.
func (s *session) record(ctx context.Context, ref agenda.RecordRef) (present.CalendarEntry, error) {
	rec, err := s.api.GetRecord(ctx, ref)
	if err != nil {
		return present.CalendarEntry{}, err
	}
	return present.CalendarEntry{
		ID:       rec.Ref().String(),
		Title:    present.EntryTitle(rec),
		Start:    rec.Date,
		ColorKey: present.ColorFor(rec.Kind),
		Record:   rec,
	}, nil
}

// parseRef accepts "kind#id", "kind/id" or a bare id of defaultKind.
func parseRef(s string, defaultKind agenda.Kind) (agenda.RecordRef, error) {
	kindPart, idPart := "", s
	if i := strings.IndexAny(s, "#/"); i >= 0 {
		kindPart, idPart = s[:i], s[i+1:]
	}
	kind := defaultKind
	if kindPart != "" {
		k, err := agenda.ParseKind(kindPart)
		if err != nil {
			return agenda.RecordRef{}, err
		}
		kind = k
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return agenda.RecordRef{}, fmt.Errorf("%w: invalid record %q", agenda.ErrValidation, s)
	}
	return agenda.RecordRef{Kind: kind, ID: id}, nil
}

func parseDate(s string) (agenda.Date, error) {
	return agenda.ParseDate(strings.TrimSpace(s))
}

package app

import (
	"sync"
	"time"

	"google.golang.org/api/option"

	"agenda-service/internal/agenda"
	"agenda-service/internal/config"
	"agenda-service/internal/scheduling"
)

// App carries the dependencies shared by all handlers.
type App struct {
	Store  Store
	Auth   config.AuthConfig
	Google config.GoogleConfig

	reports *scheduling.Validator
	now     func() time.Time
	// extra Google client options, appended after the OAuth client
	calendarOpts []option.ClientOption

	// pending OAuth states, keyed by state value
	statesMu sync.Mutex
	states   map[string]oauthState
}

type oauthState struct {
	technicianID string
	expires      time.Time
}

// New wires an App over store using the auth and Google sections of cfg.
func New(store Store, cfg *config.Config) *App {
	return &App{
		Store:   store,
		Auth:    cfg.Auth,
		Google:  cfg.Google,
		reports: scheduling.NewValidator(store, store),
		now:     time.Now,
		states:  make(map[string]oauthState),
	}
}

type rescheduleReq struct {
	NewDate agenda.Date  `json:"new_date"`
	Shift   agenda.Shift `json:"shift,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

type reportReq struct {
	Date  agenda.Date  `json:"date"`
	Shift agenda.Shift `json:"shift,omitempty"`
}

type syncResult struct {
	TechnicianID string `json:"technician_id"`
	Pushed       int    `json:"pushed"`
	Removed      int    `json:"removed"`
}

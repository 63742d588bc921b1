package present

import (
	"errors"
	"strings"

	"agenda-service/internal/agenda"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message shown after an operation.
type Notice struct {
	Level   Level
	Message string
}

// NoticeFor maps an operation error to the message shown to the user.
// A nil error yields a zero Notice.
func NoticeFor(err error) Notice {
	switch {
	case err == nil:
		return Notice{}
	case errors.Is(err, agenda.ErrConflict):
		return Notice{LevelWarning, detail(err, agenda.ErrConflict, "That slot is already booked.")}
	case errors.Is(err, agenda.ErrValidation):
		return Notice{LevelWarning, "Check the form: " + detail(err, agenda.ErrValidation, "invalid input")}
	case errors.Is(err, agenda.ErrNotFound):
		return Notice{LevelInfo, "That record no longer exists. The agenda has been refreshed."}
	case errors.Is(err, agenda.ErrBusy):
		return Notice{LevelInfo, "Another change is still being saved. Try again in a moment."}
	case errors.Is(err, agenda.ErrForbidden):
		return Notice{LevelError, "You are not allowed to change this agenda."}
	case errors.Is(err, agenda.ErrUnavailable):
		return Notice{LevelError, "The agenda service could not be reached. Try again."}
	default:
		return Notice{LevelError, "Something went wrong: " + err.Error()}
	}
}

// detail returns the text following the sentinel in err's message.
func detail(err, sentinel error, fallback string) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		if d := strings.TrimSpace(msg[i+len(prefix):]); d != "" {
			return d
		}
	}
	return fallback
}

package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/servo"
)

// Mover moves a named servo to a position in [0,1]. ctx is the request
// context, done when the server is interrupted.
type Mover interface {
	Move(ctx context.Context, name string, position float64) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Mover Mover
	// CORS is echoed as Access-Control-Allow-Origin when non-empty.
	CORS string
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(mover Mover, cors string) *Handlers {
	return &Handlers{Mover: mover, CORS: cors}
}

// ServeHTTP handles GET /?servo=NAME&move=POSITION.
//
// The response is always 200 and is sent before the move runs; bad requests
// are only reported in the server log.
func (h *Handlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Unsupported method ('"+r.Method+"')", http.StatusNotImplemented)
		return
	}

	if h.CORS != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.CORS)
	}
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	reqID := uuid.NewString()
	debug.Live("request %s: %s", reqID, r.URL.RequestURI())

	name, position, err := parseMoveRequest(r.URL)
	if err != nil {
		debug.Errorf("request %s: %v", reqID, err)
		return
	}
	if name == "" {
		return
	}
	if err := h.Mover.Move(r.Context(), name, position); err != nil {
		if errors.Is(err, context.Canceled) {
			debug.Verbose("request %s: dropped, server is stopping", reqID)
			return
		}
		debug.Errorf("request %s: %v", reqID, err)
		return
	}
	debug.Live("request %s: servo %q moved to %g", reqID, name, position)
}

// parseMoveRequest extracts the move from u. An empty name with a nil error
// means the request carries no query and is ignored.
func parseMoveRequest(u *url.URL) (string, float64, error) {
	if u.Path != "/" {
		return "", 0, &servo.ValidationError{Msg: "invalid request path '" + u.Path + "'"}
	}

	query := nonEmptyValues(u.RawQuery)
	if len(query) == 0 {
		return "", 0, nil
	}
	name, ok := query["servo"]
	if !ok {
		return "", 0, &servo.ValidationError{Msg: "request is missing a parameter with name 'servo'"}
	}
	move, ok := query["move"]
	if !ok {
		return "", 0, &servo.ValidationError{Msg: "request is missing a parameter with name 'move'"}
	}
	position, err := servo.ParsePosition(move)
	if err != nil {
		var verr *servo.ValidationError
		if errors.As(err, &verr) {
			return "", 0, &servo.ValidationError{Msg: "value of request parameter 'move': " + verr.Msg}
		}
		return "", 0, err
	}
	return name, position, nil
}

// nonEmptyValues returns the first non-blank value of every query key.
// Blank values count as absent.
func nonEmptyValues(raw string) map[string]string {
	values, _ := url.ParseQuery(raw)
	out := make(map[string]string, len(values))
	for k, vs := range values {
		for _, v := range vs {
			if v != "" {
				out[k] = v
				break
			}
		}
	}
	return out
}

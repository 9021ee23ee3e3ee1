// Package lifecycle describes which ticket status moves are legal.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/psds-microservice/ticket-tracker/internal/model"
)

// Transitions is an allow matrix from -> set of to. A nil matrix allows
// everything; use Free or Linear to build one explicitly.
type Transitions map[model.TicketStatus]map[model.TicketStatus]bool

// Free allows any status to move to any other status, including Done -> Open.
func Free() Transitions {
	t := Transitions{}
	for _, from := range model.TicketStatuses {
		t[from] = map[model.TicketStatus]bool{}
		for _, to := range model.TicketStatuses {
			t[from][to] = true
		}
	}
	return t
}

// Linear only allows neighbouring board columns plus reopening a done ticket.
func Linear() Transitions {
	t := Transitions{}
	for _, s := range model.TicketStatuses {
		t[s] = map[model.TicketStatus]bool{s: true}
	}
	for i := 0; i+1 < len(model.TicketStatuses); i++ {
		a, b := model.TicketStatuses[i], model.TicketStatuses[i+1]
		t[a][b] = true
		t[b][a] = true
	}
	t[model.TicketStatusDone][model.TicketStatusOpen] = true
	return t
}

// Parse maps a TRANSITIONS config value to a matrix.
func Parse(name string) (Transitions, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "free":
		return Free(), nil
	case "linear":
		return Linear(), nil
	}
	return nil, fmt.Errorf("unknown transition matrix %q (want free or linear)", name)
}

// Allowed reports whether from -> to is legal. Unknown statuses are never legal.
func (t Transitions) Allowed(from, to model.TicketStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if t == nil {
		return true
	}
	return t[from][to]
}

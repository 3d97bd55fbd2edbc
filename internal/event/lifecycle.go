package event

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"clubhub/internal/auth"
)

// Action is a lifecycle transition requested by a user.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionWithdraw Action = "withdraw"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
)

type transition struct {
	from []Status
	to   Status
	// roles that may run the action on any event; the owner may also run it
	// when owner is set.
	roles []string
	owner bool
}

var transitions = map[Action]transition{
	ActionSubmit:   {from: []Status{StatusDraft, StatusRejected}, to: StatusPending, roles: []string{auth.RoleAdmin}, owner: true},
	ActionWithdraw: {from: []Status{StatusPending}, to: StatusDraft, roles: []string{auth.RoleAdmin}, owner: true},
	ActionApprove:  {from: []Status{StatusPending}, to: StatusLive, roles: []string{auth.RoleSecretary, auth.RoleAdmin}},
	ActionReject:   {from: []Status{StatusPending}, to: StatusRejected, roles: []string{auth.RoleSecretary, auth.RoleAdmin}},
	ActionComplete: {from: []Status{StatusLive}, to: StatusCompleted, roles: []string{auth.RoleAdmin}, owner: true},
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Next returns the status action a leads to from current.
func Next(current Status, a Action) (Status, error) {
	t, ok := transitions[a]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
	if !slices.Contains(t.from, current) {
		return "", fmt.Errorf("%w: cannot %s an event in %s", ErrInvalidTransition, a, current)
	}
	return t.to, nil
}

// Allowed reports whether actor may run a on e.
func Allowed(e Event, a Action, actor auth.Session) bool {
	t, ok := transitions[a]
	if !ok {
		return false
	}
	if slices.Contains(t.roles, actor.Role) {
		return true
	}
	return t.owner && owns(e, actor)
}

// Apply runs a on e and returns the changed fields alongside the new event.
// remarks is required for reject and ignored otherwise.
func Apply(e Event, a Action, actor auth.Session, remarks string, now time.Time) (Event, map[string]any, error) {
	if !Allowed(e, a, actor) {
		return e, nil, ErrForbidden
	}
	to, err := Next(e.Status, a)
	if err != nil {
		return e, nil, err
	}
	remarks = strings.TrimSpace(remarks)
	if a == ActionReject && remarks == "" {
		return e, nil, ErrRemarksRequired
	}

	fields := map[string]any{"status": to, "updatedAt": now}
	e.Status = to
	e.UpdatedAt = now

	switch a {
	case ActionSubmit:
		e.Remarks = ""
		e.SubmittedAt = &now
		fields["remarks"] = ""
		fields["submittedAt"] = now
	case ActionApprove:
		e.RegistrationOpen = true
		e.ReviewedBy = actor.ID
		e.ReviewedAt = &now
		fields["registrationOpen"] = true
		fields["reviewedBy"] = actor.ID
		fields["reviewedAt"] = now
	case ActionReject:
		e.Remarks = remarks
		e.ReviewedBy = actor.ID
		e.ReviewedAt = &now
		fields["remarks"] = remarks
		fields["reviewedBy"] = actor.ID
		fields["reviewedAt"] = now
	case ActionComplete:
		e.RegistrationOpen = false
		fields["registrationOpen"] = false
	}
	return e, fields, nil
}

func owns(e Event, actor auth.Session) bool {
	return actor.Role == auth.RoleOrganizer && e.CreatedBy == actor.ID
}

// canManage covers edits, deletes and operations run on the day.
func canManage(e Event, actor auth.Session) bool {
	return actor.Role == auth.RoleAdmin || owns(e, actor)
}

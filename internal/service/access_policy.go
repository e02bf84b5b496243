package service

import (
	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
)

// Actor identifies the requesting user for policy decisions.
type Actor struct {
	ID   string
	Role models.UserRole
}

// ReminderOp enumerates the mutations the policy rules on.
type ReminderOp string

const (
	OpUpdate     ReminderOp = "update"
	OpDelete     ReminderOp = "delete"
	OpToggle     ReminderOp = "toggle"
	OpReschedule ReminderOp = "reschedule"
)

// relation classifies how the actor relates to a reminder.
type relation int

const (
	relationNone relation = iota
	relationAssigned
	relationOwner
)

type ruleKey struct {
	role     models.UserRole
	op       ReminderOp
	rel      relation
	isLocked bool
}

// accessRules is the closed authorization table. Every combination absent
// from the table is denied. Extending the system with a new role or
// operation means adding rows here, not threading new conditionals through
// the services.
var accessRules = buildAccessRules()

func buildAccessRules() map[ruleKey]bool {
	rules := make(map[ruleKey]bool)

	// Admins may update, delete and toggle any reminder. They do not submit
	// reschedule requests: they edit directly.
	for _, op := range []ReminderOp{OpUpdate, OpDelete, OpToggle} {
		for _, rel := range []relation{relationNone, relationAssigned, relationOwner} {
			for _, locked := range []bool{false, true} {
				rules[ruleKey{models.RoleAdmin, op, rel, locked}] = true
			}
		}
	}

	// Students control their own unlocked reminders.
	rules[ruleKey{models.RoleStudent, OpUpdate, relationOwner, false}] = true
	rules[ruleKey{models.RoleStudent, OpDelete, relationOwner, false}] = true
	rules[ruleKey{models.RoleStudent, OpToggle, relationOwner, false}] = true
	rules[ruleKey{models.RoleStudent, OpToggle, relationOwner, true}] = true

	// Assigned (or broadcast) admin reminders can be checked off but not
	// edited; moving one goes through the reschedule workflow.
	rules[ruleKey{models.RoleStudent, OpToggle, relationAssigned, false}] = true
	rules[ruleKey{models.RoleStudent, OpToggle, relationAssigned, true}] = true
	rules[ruleKey{models.RoleStudent, OpReschedule, relationAssigned, true}] = true

	return rules
}

// AccessPolicy is the single authority on reminder visibility and mutation
// rights.
type AccessPolicy struct{}

// NewAccessPolicy constructs the policy.
func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{}
}

// CanView reports whether the actor may read the reminder at all.
func (p *AccessPolicy) CanView(actor Actor, reminder *models.Reminder) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return p.relationOf(actor, reminder) != relationNone
}

// Authorize decides whether the actor may perform op on the reminder. The
// returned error is a Forbidden whose message tells the caller which rule
// blocked it: a locked reminder steers students to the reschedule workflow,
// anything else is a plain ownership denial.
func (p *AccessPolicy) Authorize(actor Actor, op ReminderOp, reminder *models.Reminder) error {
	rel := p.relationOf(actor, reminder)
	if accessRules[ruleKey{actor.Role, op, rel, reminder.IsLocked}] {
		return nil
	}

	if op == OpReschedule && !reminder.IsLocked {
		return appErrors.Clone(appErrors.ErrValidation, "only admin reminders support reschedule requests")
	}
	if reminder.IsLocked && rel != relationNone && (op == OpUpdate || op == OpDelete) {
		return appErrors.Clone(appErrors.ErrForbidden, "this reminder is locked by an admin; submit a reschedule request instead")
	}
	return appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this reminder")
}

func (p *AccessPolicy) relationOf(actor Actor, reminder *models.Reminder) relation {
	if reminder.CreatedBy == actor.ID {
		return relationOwner
	}
	if reminder.IsAssignedTo(actor.ID) {
		return relationAssigned
	}
	if actor.Role == models.RoleStudent && reminder.IsBroadcast() {
		return relationAssigned
	}
	return relationNone
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the delivery lifecycle state of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusBounced   Status = "bounced"
)

// Statuses lists every lifecycle state in declaration order.
var Statuses = []Status{StatusPending, StatusScheduled, StatusSent, StatusFailed, StatusBounced}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusFailed, StatusBounced:
		return true
	}
	return false
}

// IsTerminal reports whether no delivery attempt should follow this state.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusBounced
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Authority identifies the call path applying a transition.
type Authority string

const (
	AuthoritySync    Authority = "sync"
	AuthorityQueue   Authority = "queue"
	AuthorityWebhook Authority = "webhook"
)

func (a Authority) String() string { return string(a) }

type transitionKey struct {
	authority Authority
	from      Status
	to        Status
}

var transitions = map[transitionKey]struct{}{
	{AuthoritySync, StatusPending, StatusSent}:      {},
	{AuthoritySync, StatusPending, StatusFailed}:    {},
	{AuthoritySync, StatusPending, StatusScheduled}: {},
	{AuthoritySync, StatusScheduled, StatusFailed}:  {},

	{AuthorityQueue, StatusScheduled, StatusSent}:   {},
	{AuthorityQueue, StatusScheduled, StatusFailed}: {},
	{AuthorityQueue, StatusFailed, StatusSent}:      {},
	{AuthorityQueue, StatusFailed, StatusFailed}:    {},
	{AuthorityQueue, StatusPending, StatusSent}:     {},
	{AuthorityQueue, StatusPending, StatusFailed}:   {},
}

// CanTransition reports whether authority may move a record from one status to another.
// The webhook authority may mark any record bounced; the prior status is not guarded.
func CanTransition(authority Authority, from, to Status) bool {
	if authority == AuthorityWebhook {
		return to == StatusBounced && from.IsValid()
	}
	_, ok := transitions[transitionKey{authority: authority, from: from, to: to}]
	return ok
}

// TransitionResult describes the outcome of Message.Transition.
type TransitionResult struct {
	From    Status
	To      Status
	Changed bool
}

// Transition moves the message to the target status on behalf of authority.
// Reapplying bounced to a bounced record is a no-op.
func (m *Message) Transition(authority Authority, to Status, now time.Time) (TransitionResult, error) {
	result := TransitionResult{From: m.Status, To: to}

	if authority == AuthorityWebhook && m.Status == StatusBounced && to == StatusBounced {
		return result, nil
	}
	if !CanTransition(authority, m.Status, to) {
		return result, fmt.Errorf("%w: %s cannot move message %s from %s to %s",
			ErrInvalidTransition, authority, m.ID, m.Status, to)
	}

	now = now.UTC()
	m.Status = to
	m.UpdatedAt = now

	switch to {
	case StatusSent:
		m.SentAt = &now
		m.Error = ""
	case StatusBounced:
		m.BouncedAt = &now
	}

	result.Changed = true
	return result, nil
}

// MarkSent records a successful dispatch through provider.
func (m *Message) MarkSent(authority Authority, provider, providerMessageID string, now time.Time) (TransitionResult, error) {
	result, err := m.Transition(authority, StatusSent, now)
	if err != nil {
		return result, err
	}
	m.Provider = provider
	m.ProviderMessageID = providerMessageID
	return result, nil
}

// MarkFailed records a failed dispatch and its error detail.
func (m *Message) MarkFailed(authority Authority, cause error, now time.Time) (TransitionResult, error) {
	result, err := m.Transition(authority, StatusFailed, now)
	if err != nil {
		return result, err
	}
	if cause != nil {
		m.Error = cause.Error()
	}
	return result, nil
}

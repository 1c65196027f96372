package services

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// Fanout delivers events to the live connections selected by visibility
// rules. It is the single place where the cross-domain leak rules are
// applied, so handlers cannot bypass them.
type Fanout struct {
	rooms   *RoomManager
	locks   *keyedMutex
	metrics ports.RelayMetrics
	logger  *slog.Logger
}

var _ ports.EventPublisher = (*Fanout)(nil)

// NewFanout creates a fanout engine over rooms.
func NewFanout(rooms *RoomManager, metrics ports.RelayMetrics, logger *slog.Logger) *Fanout {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Fanout{
		rooms:   rooms,
		locks:   newKeyedMutex(),
		metrics: metrics,
		logger:  logger.With("component", "fanout"),
	}
}

// Publish delivers event once to every connection selected by rules and
// returns the number of successful deliveries. Delivery is best-effort:
// closed or saturated sinks are skipped.
func (f *Fanout) Publish(event domain.Event, rules ...domain.Visibility) int {
	rules = f.filter(event, rules)
	if len(rules) == 0 {
		f.metrics.EventPublished(event.Type, 0)
		return 0
	}

	unlock := f.locks.lock(scopeKeys(rules))
	defer unlock()

	delivered := 0
	for _, conn := range f.rooms.Resolve(rules...) {
		if event.StaffOnly && conn.Domain() != domain.DomainAdmin {
			continue
		}
		if conn.Send(event) {
			delivered++
		}
	}

	f.metrics.EventPublished(event.Type, delivered)
	return delivered
}

// filter drops every rule that would leak the event across domains.
func (f *Fanout) filter(event domain.Event, rules []domain.Visibility) []domain.Visibility {
	kept := make([]domain.Visibility, 0, len(rules))
	for _, rule := range rules {
		if reason := f.rejectReason(event, rule); reason != "" {
			f.logger.Warn("visibility rule dropped",
				"event_type", event.Type,
				"rule", describeRule(rule),
				"reason", reason,
			)
			continue
		}
		kept = append(kept, rule)
	}
	return kept
}

func (f *Fanout) rejectReason(event domain.Event, rule domain.Visibility) string {
	target, room := ruleScope(rule)

	if event.StaffOnly && target == domain.DomainCustomer {
		return "staff-only event addressed to customer domain"
	}

	if event.Author == nil || !event.Author.IsCustomer() || target != domain.DomainCustomer {
		return ""
	}

	author := event.Author.SubjectID
	switch r := rule.(type) {
	case domain.ToDomain:
		return "customer-authored event addressed to all customers"
	case domain.ToIdentity:
		if r.SubjectID != author {
			return "customer-authored event addressed to another customer"
		}
	default:
		ref, err := domain.ParseRoom(room)
		if err == nil && ref.IsIdentity && ref.ResourceID != author {
			return "customer-authored event addressed to another customer"
		}
	}
	return ""
}

// ruleScope returns the domain a rule targets and, for room rules, the room.
func ruleScope(rule domain.Visibility) (domain.Domain, domain.RoomName) {
	switch r := rule.(type) {
	case domain.ToDomain:
		return r.Domain, ""
	case domain.ToRoom:
		return r.Domain, r.Room
	case domain.ToIdentity:
		return r.Domain, domain.IdentityRoom(r.SubjectID)
	case domain.ToRoomExcept:
		return r.Domain, r.Room
	default:
		return "", ""
	}
}

func describeRule(rule domain.Visibility) string {
	d, room := ruleScope(rule)
	if room == "" {
		return "domain:" + string(d)
	}
	return domain.QualifiedRoom{Domain: d, Name: room}.String()
}

// scopeKeys returns the sorted, de-duplicated lock keys touched by rules.
func scopeKeys(rules []domain.Visibility) []string {
	set := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		d, room := ruleScope(rule)
		if room == "" {
			set["domain:"+string(d)] = struct{}{}
			continue
		}
		set["room:"+domain.QualifiedRoom{Domain: d, Name: room}.String()] = struct{}{}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// lock acquires every key in order. keys must be sorted so that concurrent
// callers cannot deadlock.
func (k *keyedMutex) lock(keys []string) func() {
	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &refMutex{}
			k.locks[key] = m
		}
		m.refs++
		k.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()

			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

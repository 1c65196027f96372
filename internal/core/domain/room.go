package domain

import (
	"strings"

	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
)

// ResourceKind identifies the business resource a room observes.
type ResourceKind string

const (
	ResourceOrder       ResourceKind = "order"
	ResourceReservation ResourceKind = "reservation"
	ResourceChatSession ResourceKind = "chat-session"

	// identityKind prefixes identity rooms. It is never a resource.
	identityKind = "user"
)

// IsValid reports whether the kind is a known resource kind.
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceOrder, ResourceReservation, ResourceChatSession:
		return true
	default:
		return false
	}
}

// RoomName is the unqualified name of a room, e.g. "order:42" or "user:7".
type RoomName string

// IdentityRoom returns the identity room of a subject.
func IdentityRoom(subjectID string) RoomName {
	return RoomName(identityKind + ":" + subjectID)
}

// ResourceRoom returns the room that observes one resource.
func ResourceRoom(kind ResourceKind, resourceID string) RoomName {
	return RoomName(string(kind) + ":" + resourceID)
}

// RoomRef is a parsed room name.
type RoomRef struct {
	Name       RoomName
	Kind       ResourceKind
	ResourceID string
	IsIdentity bool
}

// ValidResourceID reports whether id can name a resource. Every payload id
// and every resource room id is checked by this one rule, so any resource a
// handler accepts can also be joined.
func ValidResourceID(id string) bool {
	if id == "" || len(id) > MaxResourceIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isResourceIDByte(id[i]) {
			return false
		}
	}
	return true
}

func isResourceIDByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.':
		return true
	default:
		return false
	}
}

// ParseRoom splits a room name into its kind and id. Unknown kinds and
// invalid ids are reported as ErrUnknownResource.
func ParseRoom(name RoomName) (RoomRef, error) {
	kind, id, ok := strings.Cut(string(name), ":")
	if !ok {
		return RoomRef{}, apperrors.ErrUnknownResource
	}

	// Subject ids come from verified credentials, not from resource tables.
	if kind == identityKind {
		if id == "" || strings.ContainsAny(id, ":| ") {
			return RoomRef{}, apperrors.ErrUnknownResource
		}
		return RoomRef{Name: name, ResourceID: id, IsIdentity: true}, nil
	}

	rk := ResourceKind(kind)
	if !rk.IsValid() || !ValidResourceID(id) {
		return RoomRef{}, apperrors.ErrUnknownResource
	}
	return RoomRef{Name: name, Kind: rk, ResourceID: id}, nil
}

// QualifiedRoom is a room name scoped to a domain. The same RoomName in the
// two domains refers to two unrelated rooms.
type QualifiedRoom struct {
	Domain Domain
	Name   RoomName
}

// String renders the key used internally, e.g. "customer|order:42".
func (q QualifiedRoom) String() string {
	return string(q.Domain) + "|" + string(q.Name)
}

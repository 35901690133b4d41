package server

import (
	"fmt"
	"reflect"
)

// Scope selects which attachment store an operation applies to.
type Scope int

const (
	// ScopeConnection lives as long as the network connection.
	ScopeConnection Scope = iota
	// ScopeTransaction is cleared by Session.ResetState, including after STARTTLS.
	ScopeTransaction
)

func (s Scope) String() string {
	switch s {
	case ScopeConnection:
		return "connection"
	case ScopeTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// attachmentID is the comparable identity of a key: its name and declared type.
type attachmentID struct {
	name string
	typ  reflect.Type
}

// AttachmentKey names a typed slot in a session attachment store. Two keys
// are equal when both name and value type match.
type AttachmentKey[T any] struct {
	id attachmentID
}

// NewAttachmentKey creates a key for values of type T.
func NewAttachmentKey[T any](name string) (AttachmentKey[T], error) {
	if name == "" {
		return AttachmentKey[T]{}, ErrEmptyAttachmentName
	}
	return AttachmentKey[T]{id: attachmentID{name: name, typ: reflect.TypeOf((*T)(nil)).Elem()}}, nil
}

// MustAttachmentKey is NewAttachmentKey for package-level key declarations.
func MustAttachmentKey[T any](name string) AttachmentKey[T] {
	k, err := NewAttachmentKey[T](name)
	if err != nil {
		panic(err)
	}
	return k
}

func (k AttachmentKey[T]) Name() string { return k.id.name }

func (k AttachmentKey[T]) String() string {
	return fmt.Sprintf("%s(%s)", k.id.name, k.id.typ)
}

// convert filters a stored value to T; a mismatching value reads as absent.
func (k AttachmentKey[T]) convert(v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

type attachments map[attachmentID]any

func (s *Session) store(scope Scope) attachments {
	if scope == ScopeTransaction {
		return s.transaction
	}
	return s.connection
}

// SetAttachment stores value under key and returns the value it replaced.
func SetAttachment[T any](s *Session, key AttachmentKey[T], value T, scope Scope) (T, bool) {
	store := s.store(scope)
	prev, had := store[key.id]
	store[key.id] = value
	if !had {
		var zero T
		return zero, false
	}
	return key.convert(prev)
}

// GetAttachment returns the value stored under key, or false when it is
// absent or holds a value of another type.
func GetAttachment[T any](s *Session, key AttachmentKey[T], scope Scope) (T, bool) {
	v, ok := s.store(scope)[key.id]
	if !ok {
		var zero T
		return zero, false
	}
	return key.convert(v)
}

// RemoveAttachment deletes key from the store and returns the removed value.
func RemoveAttachment[T any](s *Session, key AttachmentKey[T], scope Scope) (T, bool) {
	store := s.store(scope)
	v, ok := store[key.id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(store, key.id)
	return key.convert(v)
}

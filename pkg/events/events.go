// Package events decodes raw stream records into typed change events.
//
// Each canonical topic carries one wire schema; Decode is a total function
// from (canonical topic, payload) to either the matching variant or a
// *DecodeError for that single record.
package events

import (
	"time"

	"github.com/entitysync/entitysync/pkg/change"
)

// Canonical topic names, independent of any cluster prefix.
const (
	TopicRevisionCreate = "mediawiki.revision-create"
	TopicPageDelete     = "mediawiki.page-delete"
	TopicPageUndelete   = "mediawiki.page-undelete"
	TopicPropertyChange = "mediawiki.page-properties-change"
)

// CanonicalTopics lists every topic this decoder understands, in a stable
// order suitable for subscription setup.
func CanonicalTopics() []string {
	return []string{TopicRevisionCreate, TopicPageDelete, TopicPageUndelete, TopicPropertyChange}
}

// ChangeEvent is one decoded wire event. Implementations are immutable and
// discarded after normalization.
type ChangeEvent interface {
	EntityID() string
	// Revision is change.NoRevision for kinds without an applicable revision.
	Revision() int64
	Timestamp() time.Time
	Domain() string
	Namespace() int
}

type eventMeta struct {
	domain    string
	namespace int
	timestamp time.Time
}

func (m eventMeta) Domain() string       { return m.domain }
func (m eventMeta) Namespace() int       { return m.namespace }
func (m eventMeta) Timestamp() time.Time { return m.timestamp }

// RevisionCreate is emitted when a new revision of an entity page is saved.
type RevisionCreate struct {
	eventMeta
	entityID string
	revision int64
}

func (e RevisionCreate) EntityID() string { return e.entityID }
func (e RevisionCreate) Revision() int64  { return e.revision }

// PageDelete is emitted when an entity page is deleted. It carries no
// applicable revision.
type PageDelete struct {
	eventMeta
	entityID string
}

func (e PageDelete) EntityID() string { return e.entityID }
func (e PageDelete) Revision() int64  { return change.NoRevision }

// PageUndelete is emitted when a deleted entity page is restored at a given
// revision.
type PageUndelete struct {
	eventMeta
	entityID string
	revision int64
}

func (e PageUndelete) EntityID() string { return e.entityID }
func (e PageUndelete) Revision() int64  { return e.revision }

// PropertyChange is emitted when page properties change without a new
// revision.
type PropertyChange struct {
	eventMeta
	entityID string
}

func (e PropertyChange) EntityID() string { return e.entityID }
func (e PropertyChange) Revision() int64  { return change.NoRevision }

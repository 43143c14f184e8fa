package memstoresrv

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newID builds an opaque, lexicographically-sortable unique id: a
// fixed-width millisecond timestamp prefix (sortable as a plain string up
// to year 2286) followed by a random UUID suffix for uniqueness within the
// same millisecond.
func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%013d_%s", prefix, now.UnixMilli(), uuid.New().String())
}

func newMemoryID(now time.Time) string       { return newID("mem", now) }
func newRelationshipID(now time.Time) string { return newID("rel", now) }
func newVersionID(now time.Time) string      { return newID("ver", now) }
func newTemplateID(now time.Time) string     { return newID("tpl", now) }
func newSessionID(now time.Time) string      { return newID("ses", now) }
func newChainID(now time.Time) string        { return newID("chn", now) }
func newSubtaskID(now time.Time) string      { return newID("sub", now) }

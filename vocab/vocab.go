// Package vocab is the status keyword vocabulary for pipeline subjects.
// It is constructed once per process and injected where needed; entries are
// read-only after init.
package vocab

import (
	"github.com/patrickmn/go-cache"
)

// Canonical subject statuses through the workflow.
const (
	Unprepared     = "unprepared"
	Splitting      = "splitting"
	Prepared       = "prepared"
	Georeferencing = "georeferencing"
	Georeferenced  = "georeferenced"
	Trimming       = "trimming"
	Trimmed        = "trimmed"
)

// Manager resolves status keywords and their workflow relationships.
type Manager struct {
	c *cache.Cache
}

type entry struct {
	Label string
	// Prior is the stable status to fall back to when a session in this
	// in-progress status is abandoned or undone.
	Prior string
}

func NewManager() *Manager {
	c := cache.New(cache.NoExpiration, 0)
	for keyword, e := range map[string]entry{
		Unprepared:     {Label: "Unprepared"},
		Splitting:      {Label: "Splitting", Prior: Unprepared},
		Prepared:       {Label: "Prepared"},
		Georeferencing: {Label: "Georeferencing", Prior: Prepared},
		Georeferenced:  {Label: "Georeferenced"},
		Trimming:       {Label: "Trimming", Prior: Georeferenced},
		Trimmed:        {Label: "Trimmed"},
	} {
		c.Set(keyword, e, cache.NoExpiration)
	}
	return &Manager{c: c}
}

// Lookup reports whether the keyword is part of the vocabulary.
func (m *Manager) Lookup(keyword string) bool {
	_, ok := m.c.Get(keyword)
	return ok
}

// Label returns the display label for a keyword.
func (m *Manager) Label(keyword string) string {
	if v, ok := m.c.Get(keyword); ok {
		return v.(entry).Label
	}
	return keyword
}

// PriorStable returns the stable status preceding an in-progress keyword,
// or the keyword itself when it is already stable.
func (m *Manager) PriorStable(keyword string) string {
	if v, ok := m.c.Get(keyword); ok {
		if prior := v.(entry).Prior; prior != "" {
			return prior
		}
	}
	return keyword
}

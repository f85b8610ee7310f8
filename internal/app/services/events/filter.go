// Package events implements the node event pipeline: feed liveness tracking,
// collection, normalisation, persistence and notification hand-off.
package events

import (
	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/lightning"
)

// Filter selects which event categories pass through a collector.
type Filter struct {
	categories map[event.Category]struct{}
	includeAll bool
}

// AllEvents returns a filter that accepts every event.
func AllEvents() Filter {
	return Filter{includeAll: true}
}

// ForCategories returns a filter accepting only the given categories.
func ForCategories(categories ...event.Category) Filter {
	set := make(map[event.Category]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return Filter{categories: set}
}

// ChannelsOnly returns a filter accepting only channel events.
func ChannelsOnly() Filter {
	return ForCategories(event.CategoryChannel)
}

// InvoicesOnly returns a filter accepting only invoice events.
func InvoicesOnly() Filter {
	return ForCategories(event.CategoryInvoice)
}

// Includes reports whether the filter accepts a category.
func (f Filter) Includes(category event.Category) bool {
	if f.includeAll {
		return true
	}
	_, ok := f.categories[category]
	return ok
}

// Matches reports whether a raw event passes the filter.
func (f Filter) Matches(raw lightning.RawEvent) bool {
	if f.includeAll {
		return true
	}
	return f.Includes(raw.Category())
}

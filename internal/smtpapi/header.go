// Package smtpapi builds the X-SMTPAPI personalization header: per-recipient
// substitutions, categories, unique tracking arguments, sections and filters.
package smtpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Filter holds the settings of a single app filter (e.g. "clicktrack").
type Filter struct {
	Settings map[string]any `json:"settings" yaml:"settings"`
}

// Description is the wire shape of the header. It is also accepted as the
// seed for New, so a header can be decoded straight from JSON or YAML.
type Description struct {
	To         []string            `json:"to,omitempty" yaml:"to"`
	Sub        map[string][]string `json:"sub,omitempty" yaml:"sub"`
	UniqueArgs map[string]string   `json:"unique_args,omitempty" yaml:"unique_args"`
	Category   StringList          `json:"category,omitempty" yaml:"category"`
	Section    map[string]string   `json:"section,omitempty" yaml:"section"`
	Filters    map[string]Filter   `json:"filters,omitempty" yaml:"filters"`
}

// Header accumulates personalization metadata for one message. The zero value
// is an empty header ready for use. It is not safe for concurrent use.
type Header struct {
	to         []string
	sub        map[string][]string
	uniqueArgs map[string]string
	category   []string
	section    map[string]string
	filters    map[string]Filter
}

// New returns a Header seeded from d. A nil d yields an empty header.
// The seed is copied; later changes to d do not affect the header.
func New(d *Description) *Header {
	h := &Header{}
	if d == nil {
		d = &Description{}
	}
	h.SetTos(d.To...)
	h.SetSubstitutions(d.Sub)
	h.SetUniqueArgs(d.UniqueArgs)
	h.SetCategories(d.Category...)
	h.SetSections(d.Section)
	h.SetFilters(d.Filters)
	return h
}

// AddTo appends recipients in order.
func (h *Header) AddTo(to ...string) {
	h.to = append(h.to, to...)
}

// SetTos replaces the recipient list.
func (h *Header) SetTos(to ...string) {
	h.to = append(make([]string, 0, len(to)), to...)
}

// Recipients returns a copy of the recipient list.
func (h *Header) Recipients() []string {
	return slices.Clone(h.to)
}

// AddSubstitution appends values to the substitution list for key, creating
// the list if it does not exist yet. Values always accumulate per key.
func (h *Header) AddSubstitution(key string, values ...string) {
	if h.sub == nil {
		h.sub = make(map[string][]string)
	}
	if _, ok := h.sub[key]; !ok {
		h.sub[key] = make([]string, 0, len(values))
	}
	h.sub[key] = append(h.sub[key], values...)
}

// SetSubstitutions replaces every substitution.
func (h *Header) SetSubstitutions(subs map[string][]string) {
	h.sub = make(map[string][]string, len(subs))
	for k, v := range subs {
		h.sub[k] = append(make([]string, 0, len(v)), v...)
	}
}

// AddUniqueArg sets a single unique argument.
func (h *Header) AddUniqueArg(key, value string) {
	if h.uniqueArgs == nil {
		h.uniqueArgs = make(map[string]string)
	}
	h.uniqueArgs[key] = value
}

// SetUniqueArgs replaces every unique argument.
func (h *Header) SetUniqueArgs(args map[string]string) {
	h.uniqueArgs = cloneMap(args)
}

// AddCategory appends one or more categories.
func (h *Header) AddCategory(categories ...string) {
	h.category = append(h.category, categories...)
}

// SetCategories replaces the category list.
func (h *Header) SetCategories(categories ...string) {
	h.category = append(make([]string, 0, len(categories)), categories...)
}

// AddSection sets the expansion for a single section tag.
func (h *Header) AddSection(tag, value string) {
	if h.section == nil {
		h.section = make(map[string]string)
	}
	h.section[tag] = value
}

// SetSections replaces every section.
func (h *Header) SetSections(sections map[string]string) {
	h.section = cloneMap(sections)
}

// AddFilter sets one setting of a filter, creating the filter if needed.
func (h *Header) AddFilter(filter, setting string, value any) {
	if h.filters == nil {
		h.filters = make(map[string]Filter)
	}
	f, ok := h.filters[filter]
	if !ok || f.Settings == nil {
		f = Filter{Settings: make(map[string]any)}
		h.filters[filter] = f
	}
	f.Settings[setting] = value
}

// SetFilters replaces every filter.
func (h *Header) SetFilters(filters map[string]Filter) {
	h.filters = make(map[string]Filter, len(filters))
	for name, f := range filters {
		h.filters[name] = Filter{Settings: cloneMap(f.Settings)}
	}
}

// Description returns a snapshot of the header in its wire shape.
func (h *Header) Description() Description {
	d := Description{
		To:         slices.Clone(h.to),
		UniqueArgs: cloneMap(h.uniqueArgs),
		Category:   slices.Clone(h.category),
		Section:    cloneMap(h.section),
	}
	if len(h.sub) > 0 {
		d.Sub = make(map[string][]string, len(h.sub))
		for k, v := range h.sub {
			d.Sub[k] = append(make([]string, 0, len(v)), v...)
		}
	}
	if len(h.filters) > 0 {
		d.Filters = make(map[string]Filter, len(h.filters))
		for name, f := range h.filters {
			d.Filters[name] = Filter{Settings: cloneMap(f.Settings)}
		}
	}
	return d
}

// JSON serializes the header. Empty fields are omitted, so a header with no
// data serializes to "{}". HTML characters in values are not escaped.
func (h *Header) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(h.Description()); err != nil {
		return "", fmt.Errorf("failed to encode smtpapi header: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	maps.Copy(out, m)
	return out
}

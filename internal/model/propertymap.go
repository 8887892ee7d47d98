package model

import "strings"

// PropertyMap maps a productPropertyId to the comma-joined string of its
// values for one host, used for "%propertyId%" substitution in rendered
// templates.
type PropertyMap map[string]string

// NewPropertyMap builds a PropertyMap from a list of property states,
// joining each state's values with commas.
func NewPropertyMap(states []ProductPropertyState) PropertyMap {
	m := make(PropertyMap, len(states))
	for _, s := range states {
		m[s.PropertyID] = strings.Join(s.Values, ",")
	}
	return m
}

// Lookup returns the joined value for id, or the empty string if absent.
func (m PropertyMap) Lookup(id string) string {
	return m[id]
}

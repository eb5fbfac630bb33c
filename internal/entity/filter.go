package entity

import "path"

// Filter selects which backend entities are exposed to callers.
// An empty domain list includes all domains; exclude patterns are
// native ids or shell-style globs ("sensor.*_battery").
type Filter struct {
	includeDomains  map[string]bool
	excludePatterns []string
}

// NewFilter builds a filter from configured include/exclude lists.
func NewFilter(includeDomains, excludePatterns []string) *Filter {
	f := &Filter{excludePatterns: excludePatterns}
	if len(includeDomains) > 0 {
		f.includeDomains = make(map[string]bool, len(includeDomains))
		for _, d := range includeDomains {
			f.includeDomains[d] = true
		}
	}
	return f
}

// Include reports whether the entity passes the filter. It satisfies
// the predicate shape the cache consumes.
func (f *Filter) Include(e Entity) bool {
	if f.includeDomains != nil {
		prefix := rawDomain(e.NativeID)
		if !f.includeDomains[prefix] {
			return false
		}
	}
	for _, pattern := range f.excludePatterns {
		if ok, _ := path.Match(pattern, e.NativeID); ok {
			return false
		}
		if pattern == e.NativeID {
			return false
		}
	}
	return true
}

func rawDomain(nativeID string) string {
	for i := 0; i < len(nativeID); i++ {
		if nativeID[i] == '.' {
			return nativeID[:i]
		}
	}
	return ""
}

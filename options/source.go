package options

// PropertySource is a flat, read-only property namespace such as
// "rate.limited.<key>.enabled". Implementations must be safe for
// concurrent use; live sources may change values between two lookups.
type PropertySource interface {
	// Lookup returns the raw value of name and whether it is set.
	Lookup(name string) (any, bool)
}

// MapSource is a static PropertySource.
type MapSource map[string]any

func (m MapSource) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

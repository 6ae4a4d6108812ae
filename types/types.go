package types

// Account is the default account record: an opaque tree of named values.
// The store never looks inside it.
type Account map[string]any

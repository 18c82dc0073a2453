package catalog

import "fmt"

// Catalog holds the named, keyed collections spec §4.8 describes:
// "wait", "registry", "doctor-exam", "domainname", "external_secrets",
// "charts" kinds, each populated by plugin Load() calls. Re-registering
// a kind or an item under an existing key is a configuration error.
type Catalog struct {
	kinds map[string]map[string]interface{}
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{kinds: make(map[string]map[string]interface{})}
}

// RegisterKind declares a new collection kind (e.g. "wait"). Calling it
// twice for the same kind is an error.
func (c *Catalog) RegisterKind(kind string) error {
	if _, ok := c.kinds[kind]; ok {
		return fmt.Errorf("catalog: kind %q already registered", kind)
	}
	c.kinds[kind] = make(map[string]interface{})
	return nil
}

// Register adds item under key within kind. kind must already exist
// via RegisterKind; key must not already be taken.
func (c *Catalog) Register(kind, key string, item interface{}) error {
	items, ok := c.kinds[kind]
	if !ok {
		return fmt.Errorf("catalog: unknown kind %q", kind)
	}
	if _, exists := items[key]; exists {
		return fmt.Errorf("catalog: %s %q already registered", kind, key)
	}
	items[key] = item
	return nil
}

// Lookup returns the item registered under key within kind.
func (c *Catalog) Lookup(kind, key string) (interface{}, bool) {
	items, ok := c.kinds[kind]
	if !ok {
		return nil, false
	}
	item, ok := items[key]
	return item, ok
}

// Keys returns the registered keys for kind, in no particular order.
func (c *Catalog) Keys(kind string) []string {
	items, ok := c.kinds[kind]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

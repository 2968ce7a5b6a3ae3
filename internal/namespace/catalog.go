package namespace

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Namespace is one partition of the knowledge base.
type Namespace struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is the fixed, ordered set of partitions a question can be routed to.
type Catalog struct {
	namespaces  []Namespace
	index       map[string]bool
	defaultName string
}

var builtin = []Namespace{
	{Name: "general", Description: "General questions about the program, the community and Amazon selling"},
	{Name: "unit-1", Description: "Amazon FBA fundamentals, seller account setup and fees"},
	{Name: "unit-2", Description: "Business formation, taxes, brand registry and trademarks"},
	{Name: "unit-3", Description: "Product research: finding profitable products, demand and competition analysis"},
	{Name: "unit-4", Description: "Sourcing: suppliers, samples, negotiation and manufacturing"},
	{Name: "unit-5", Description: "Listing creation: titles, bullets, keywords, images and A+ content"},
	{Name: "unit-6", Description: "Shipping, freight, customs, inventory and FBA prep"},
	{Name: "unit-7", Description: "Launch strategy, PPC advertising and reviews"},
	{Name: "unit-8", Description: "Scaling, operations, cash flow and brand growth"},
}

// DefaultCatalog returns the built-in catalog with "general" as default.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(builtin, "general")
	return c
}

// NewCatalog builds a catalog. Names are trimmed; empty and duplicate names
// are rejected. A default missing from the list is appended to it.
func NewCatalog(namespaces []Namespace, defaultName string) (*Catalog, error) {
	if defaultName == "" {
		return nil, fmt.Errorf("catalog needs a default namespace")
	}
	c := &Catalog{index: make(map[string]bool), defaultName: defaultName}
	for _, ns := range namespaces {
		ns.Name = strings.TrimSpace(ns.Name)
		if ns.Name == "" {
			return nil, fmt.Errorf("namespace with empty name")
		}
		if c.index[ns.Name] {
			return nil, fmt.Errorf("duplicate namespace %q", ns.Name)
		}
		c.index[ns.Name] = true
		c.namespaces = append(c.namespaces, ns)
	}
	if !c.index[defaultName] {
		c.index[defaultName] = true
		c.namespaces = append(c.namespaces, Namespace{Name: defaultName, Description: "General knowledge base"})
	}
	return c, nil
}

type catalogFile struct {
	Default    string      `json:"default"`
	Namespaces []Namespace `json:"namespaces"`
}

// LoadCatalog reads a catalog from a JSON file of the form
// {"default": "general", "namespaces": [{"name": ..., "description": ...}]}.
// An empty path returns the built-in catalog with defaultName as default.
// The file's own default wins over defaultName.
func LoadCatalog(path, defaultName string) (*Catalog, error) {
	if path == "" {
		if defaultName == "" {
			return DefaultCatalog(), nil
		}
		return NewCatalog(builtin, defaultName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading namespace catalog: %w", err)
	}
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing namespace catalog %s: %w", path, err)
	}
	if f.Default == "" {
		f.Default = defaultName
	}
	if len(f.Namespaces) == 0 {
		return nil, fmt.Errorf("namespace catalog %s lists no namespaces", path)
	}
	return NewCatalog(f.Namespaces, f.Default)
}

// List returns the namespaces in catalog order.
func (c *Catalog) List() []Namespace {
	return append([]Namespace(nil), c.namespaces...)
}

// Names returns the namespace names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.namespaces))
	for i, ns := range c.namespaces {
		names[i] = ns.Name
	}
	return names
}

func (c *Catalog) Has(name string) bool { return c.index[name] }

func (c *Catalog) Default() string { return c.defaultName }

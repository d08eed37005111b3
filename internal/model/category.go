package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Category is the semantic label derived from a detection's class id.
type Category string

// CategoryOther collects every class id that is not mapped.
const CategoryOther Category = "other"

// CategoryMap is an immutable, ordered classId -> Category lookup.
type CategoryMap struct {
	byClass map[int]Category
	names   []Category
}

// CategoryBinding is one classId -> name entry of the configuration.
type CategoryBinding struct {
	ClassID int    `yaml:"class_id"`
	Name    string `yaml:"name"`
}

// NewCategoryMap builds a map from bindings, keeping their order.
// Several class ids may share one category name.
func NewCategoryMap(bindings []CategoryBinding) (CategoryMap, error) {
	m := CategoryMap{byClass: make(map[int]Category, len(bindings))}
	seen := make(map[Category]bool)

	for _, b := range bindings {
		name := Category(strings.TrimSpace(b.Name))
		if name == "" {
			return CategoryMap{}, fmt.Errorf("class %d: empty category name", b.ClassID)
		}
		if name == CategoryOther {
			return CategoryMap{}, fmt.Errorf("class %d: %q is reserved", b.ClassID, CategoryOther)
		}
		if _, dup := m.byClass[b.ClassID]; dup {
			return CategoryMap{}, fmt.Errorf("class %d mapped twice", b.ClassID)
		}
		m.byClass[b.ClassID] = name
		if !seen[name] {
			seen[name] = true
			m.names = append(m.names, name)
		}
	}
	m.names = append(m.names, CategoryOther)
	return m, nil
}

// ParseCategoryBindings parses "52:banana,55:orange".
func ParseCategoryBindings(s string) ([]CategoryBinding, error) {
	var bindings []CategoryBinding
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("category %q: expected <classId>:<name>", part)
		}
		classID, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("category %q: invalid class id: %w", part, err)
		}
		bindings = append(bindings, CategoryBinding{ClassID: classID, Name: strings.TrimSpace(name)})
	}
	return bindings, nil
}

// Lookup returns the category for classID, or CategoryOther.
func (m CategoryMap) Lookup(classID int) Category {
	if c, ok := m.byClass[classID]; ok {
		return c
	}
	return CategoryOther
}

// Names lists the configured categories in order, "other" last.
func (m CategoryMap) Names() []Category {
	if len(m.names) == 0 {
		return []Category{CategoryOther}
	}
	out := make([]Category, len(m.names))
	copy(out, m.names)
	return out
}

// ClassIDs returns the mapped class ids in ascending order.
func (m CategoryMap) ClassIDs() []int {
	ids := make([]int, 0, len(m.byClass))
	for id := range m.byClass {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

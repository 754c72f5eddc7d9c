// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemes.yaml
var defaultSchemesYAML []byte

// Scheme is static context for one health scheme
type Scheme struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Facts       []string `yaml:"facts" json:"facts"`
}

type schemeFile struct {
	Schemes []Scheme `yaml:"schemes"`
}

// SchemeTable is an immutable lookup of schemes by id
type SchemeTable struct {
	byID map[string]Scheme
	ids  []string
}

// ParseSchemes parses a YAML scheme table
func ParseSchemes(data []byte) (*SchemeTable, error) {
	var file schemeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scheme table: %w", err)
	}

	table := &SchemeTable{byID: make(map[string]Scheme, len(file.Schemes))}
	for i, s := range file.Schemes {
		id := normalizeID(s.ID)
		if id == "" {
			return nil, fmt.Errorf("scheme %d has no id", i)
		}
		if s.Name == "" {
			return nil, fmt.Errorf("scheme %q has no name", id)
		}
		if _, dup := table.byID[id]; dup {
			return nil, fmt.Errorf("duplicate scheme id %q", id)
		}
		s.ID = id
		table.byID[id] = s
		table.ids = append(table.ids, id)
	}
	sort.Strings(table.ids)
	return table, nil
}

// LoadSchemes reads a scheme table from disk. An empty path returns the
// embedded default table.
func LoadSchemes(path string) (*SchemeTable, error) {
	if path == "" {
		return DefaultSchemes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scheme table: %w", err)
	}
	return ParseSchemes(data)
}

// DefaultSchemes returns the embedded scheme table
func DefaultSchemes() *SchemeTable {
	table, err := ParseSchemes(defaultSchemesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded scheme table is invalid: %v", err))
	}
	return table
}

// Lookup finds a scheme by id, ignoring case and surrounding space
func (t *SchemeTable) Lookup(id string) (Scheme, bool) {
	s, ok := t.byID[normalizeID(id)]
	return s, ok
}

// All returns the schemes sorted by id
func (t *SchemeTable) All() []Scheme {
	out := make([]Scheme, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.byID[id])
	}
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

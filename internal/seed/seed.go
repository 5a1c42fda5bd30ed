// Package seed loads race categories and kit claim locations from a YAML file.
//
//	categories:
//	  - name: 5K
//	    price: 500
//	claim_locations:
//	  - id: hq
//	    name: Church HQ
//	    address: 12 Mabini St
//	    active: false
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"famrun/internal/models"
	"famrun/internal/store"
)

type File struct {
	Categories     []Category `yaml:"categories"`
	ClaimLocations []Location `yaml:"claim_locations"`
}

type Category struct {
	Name   string  `yaml:"name"`
	Price  float64 `yaml:"price"`
	Active *bool   `yaml:"active"`
}

type Location struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Active  *bool  `yaml:"active"`
}

func LoadFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Load(bytes.NewReader(b))
}

// Load decodes and validates a seed document. Unknown keys are rejected.
func Load(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, f.validate()
}

func (f File) validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, c := range f.Categories {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
		case strings.ContainsAny(name, "|\r\n"):
			errs = append(errs, fmt.Errorf("categories[%d]: name %q contains a reserved character", i, name))
		case seen["c:"+name]:
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate name %q", i, name))
		}
		if c.Price < 0 {
			errs = append(errs, fmt.Errorf("categories[%d]: price must not be negative", i))
		}
		seen["c:"+name] = true
	}
	for i, l := range f.ClaimLocations {
		id := strings.TrimSpace(l.ID)
		if id == "" || strings.TrimSpace(l.Name) == "" {
			errs = append(errs, fmt.Errorf("claim_locations[%d]: id and name are required", i))
		}
		if id != "" && seen["l:"+id] {
			errs = append(errs, fmt.Errorf("claim_locations[%d]: duplicate id %q", i, id))
		}
		seen["l:"+id] = true
	}
	return errors.Join(errs...)
}

// Apply upserts every entry. Entries without an explicit active flag are active.
func Apply(ctx context.Context, st store.ReferenceStore, f File) (categories, locations int, err error) {
	for _, c := range f.Categories {
		cat := models.Category{Name: strings.TrimSpace(c.Name), Price: c.Price, Active: activeOr(c.Active)}
		if err := st.PutCategory(ctx, cat); err != nil {
			return categories, locations, fmt.Errorf("category %s: %w", cat.Name, err)
		}
		categories++
	}
	for _, l := range f.ClaimLocations {
		loc := models.ClaimLocation{
			ID:      strings.TrimSpace(l.ID),
			Name:    strings.TrimSpace(l.Name),
			Address: strings.TrimSpace(l.Address),
			Active:  activeOr(l.Active),
		}
		if err := st.PutClaimLocation(ctx, loc); err != nil {
			return categories, locations, fmt.Errorf("claim location %s: %w", loc.ID, err)
		}
		locations++
	}
	return categories, locations, nil
}

func activeOr(v *bool) bool {
	return v == nil || *v
}

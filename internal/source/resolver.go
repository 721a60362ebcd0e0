// Package source holds the capabilities that populate a form's facts from
// external systems: the weather forecast, the to-do list and the location and
// identity lookups they depend on.
package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Fact keys written by the resolvers.
const (
	KeyZipCode  = "zip_code"
	KeyUsername = "username"
)

// Hardcoded identity used when no directory is configured.
const (
	DefaultZip  = "07307"
	DefaultUser = "Andy"
)

// PlaceResolver finds the postal code for a form id.
type PlaceResolver interface {
	ZipCode(ctx context.Context, formID string) (string, bool)
}

// UserResolver finds the to-do account name for a form id.
type UserResolver interface {
	Username(ctx context.Context, formID string) (string, bool)
}

// StaticPlace resolves every form to the same postal code. An empty Zip
// resolves nothing.
type StaticPlace struct {
	Zip string
}

func (s StaticPlace) ZipCode(context.Context, string) (string, bool) {
	return s.Zip, s.Zip != ""
}

// StaticUser resolves every form to the same account name.
type StaticUser struct {
	Name string
}

func (s StaticUser) Username(context.Context, string) (string, bool) {
	return s.Name, s.Name != ""
}

// DirectoryEntry is one form id's identity record.
type DirectoryEntry struct {
	ZipCode  string `yaml:"zip_code"`
	Username string `yaml:"username"`
}

// Directory maps form ids to identity records. Ids missing from Entries fall
// back to Defaults field by field.
//
//	defaults:
//	  zip_code: "07307"
//	entries:
//	  Andy:
//	    zip_code: "10001"
//	    username: andy
type Directory struct {
	Defaults DirectoryEntry            `yaml:"defaults"`
	Entries  map[string]DirectoryEntry `yaml:"entries"`
}

// LoadDirectory reads a directory from a YAML file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read directory %s", path)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes a directory from YAML.
func ParseDirectory(data []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "source: parse directory")
	}
	if d.Entries == nil {
		d.Entries = make(map[string]DirectoryEntry)
	}
	return &d, nil
}

func (d *Directory) entry(formID string) DirectoryEntry {
	e := d.Entries[formID]
	if e.ZipCode == "" {
		e.ZipCode = d.Defaults.ZipCode
	}
	if e.Username == "" {
		e.Username = d.Defaults.Username
	}
	return e
}

// ZipCode implements PlaceResolver.
func (d *Directory) ZipCode(_ context.Context, formID string) (string, bool) {
	z := d.entry(formID).ZipCode
	return z, z != ""
}

// Username implements UserResolver.
func (d *Directory) Username(_ context.Context, formID string) (string, bool) {
	u := d.entry(formID).Username
	return u, u != ""
}

// factString reads a raw fact as a non-empty string.
func factString(v any, ok bool) (string, bool) {
	if !ok {
		return "", false
	}
	s, isStr := v.(string)
	return s, isStr && s != ""
}

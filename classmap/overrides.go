package classmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/reoring/docmap"
)

// Overrides adjust auto-mapped classes from a configuration file, so element
// names, order and requirements can change without touching struct tags.
//
//	classes:
//	  - type: model.Point
//	    discriminator: point
//	    members:
//	      - name: Label
//	        element: lbl
//	        default: origin
//	      - name: Debug
//	        ignore: true
type Overrides struct {
	Classes []ClassOverride `yaml:"classes" json:"classes"`
}

// ClassOverride configures one class. Type is the Go type as printed by
// reflect ("model.Point") or qualified by import path
// ("example.com/app/model.Point").
type ClassOverride struct {
	Type                    string           `yaml:"type" json:"type"`
	Discriminator           string           `yaml:"discriminator,omitempty" json:"discriminator,omitempty"`
	DiscriminatorIsRequired *bool            `yaml:"discriminatorIsRequired,omitempty" json:"discriminatorIsRequired,omitempty"`
	RootClass               *bool            `yaml:"rootClass,omitempty" json:"rootClass,omitempty"`
	IgnoreExtraElements     *bool            `yaml:"ignoreExtraElements,omitempty" json:"ignoreExtraElements,omitempty"`
	Members                 []MemberOverride `yaml:"members,omitempty" json:"members,omitempty"`
}

// MemberOverride configures one member by Go name.
type MemberOverride struct {
	Name            string  `yaml:"name" json:"name"`
	Element         string  `yaml:"element,omitempty" json:"element,omitempty"`
	Order           *int    `yaml:"order,omitempty" json:"order,omitempty"`
	Required        *bool   `yaml:"required,omitempty" json:"required,omitempty"`
	IgnoreIfNull    *bool   `yaml:"ignoreIfNull,omitempty" json:"ignoreIfNull,omitempty"`
	IgnoreIfDefault *bool   `yaml:"ignoreIfDefault,omitempty" json:"ignoreIfDefault,omitempty"`
	Default         *string `yaml:"default,omitempty" json:"default,omitempty"`
	Ignore          bool    `yaml:"ignore,omitempty" json:"ignore,omitempty"`
}

func overrideErr(format string, args ...any) *docmap.Error {
	return docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidOverride, nil).WithMessage(format, args...)
}

// ParseOverridesYAML decodes YAML overrides. Unknown fields are rejected.
func ParseOverridesYAML(data []byte) (*Overrides, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var o Overrides
	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return nil, overrideErr("invalid YAML overrides").WithCause(err)
	}
	return &o, o.Validate()
}

// ParseOverridesJSON decodes JSON overrides. Unknown fields are rejected.
func ParseOverridesJSON(data []byte) (*Overrides, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var o Overrides
	if err := dec.Decode(&o); err != nil {
		return nil, overrideErr("invalid JSON overrides").WithCause(err)
	}
	return &o, o.Validate()
}

// LoadOverridesFile reads overrides from path; ".json" files are JSON, every
// other extension is YAML.
func LoadOverridesFile(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseOverridesJSON(data)
	}
	return ParseOverridesYAML(data)
}

// Validate checks that every class and member override is named and that no
// type or member is configured twice.
func (o *Overrides) Validate() error {
	var errs []error
	types := map[string]bool{}
	for i, c := range o.Classes {
		if c.Type == "" {
			errs = append(errs, overrideErr("classes[%d] has no type", i))
			continue
		}
		if types[c.Type] {
			errs = append(errs, overrideErr("type %q is configured twice", c.Type))
		}
		types[c.Type] = true
		members := map[string]bool{}
		for j, m := range c.Members {
			switch {
			case m.Name == "":
				errs = append(errs, overrideErr("%s: members[%d] has no name", c.Type, j))
			case members[m.Name]:
				errs = append(errs, overrideErr("%s: member %s is configured twice", c.Type, m.Name))
			case m.Ignore && (m.Element != "" || m.Order != nil || m.Required != nil || m.Default != nil):
				errs = append(errs, overrideErr("%s: member %s is ignored and configured", c.Type, m.Name))
			}
			members[m.Name] = true
		}
	}
	return errors.Join(errs...)
}

// For returns the override configuring t.
func (o *Overrides) For(t reflect.Type) (*ClassOverride, bool) {
	if o == nil || t == nil {
		return nil, false
	}
	qualified := t.PkgPath() + "." + t.Name()
	for i := range o.Classes {
		c := &o.Classes[i]
		if c.Type == t.String() || c.Type == qualified {
			return c, true
		}
	}
	return nil, false
}

// Apply configures b from o. Members must already be mapped; unknown member
// names record an invalid_override error.
func (b *Builder[T]) Apply(o *ClassOverride) *Builder[T] {
	if o == nil || b.frozen() {
		return b
	}
	if o.Discriminator != "" {
		b.discriminator = o.Discriminator
	}
	if o.DiscriminatorIsRequired != nil {
		b.discRequired = *o.DiscriminatorIsRequired
	}
	if o.RootClass != nil {
		b.rootClass = *o.RootClass
	}
	if o.IgnoreExtraElements != nil {
		b.ignoreExtra = *o.IgnoreExtraElements
	}
	for _, mo := range o.Members {
		m := b.find(mo.Name)
		if m == nil {
			b.fail(docmap.NewError(docmap.KindConfiguration, docmap.CodeInvalidOverride, b.typ).
				WithMember(mo.Name).
				WithMessage("override names member %s, which is not mapped", mo.Name))
			continue
		}
		if mo.Ignore {
			b.Unmap(mo.Name)
			continue
		}
		m.auto = false
		if mo.Element != "" {
			m.element = mo.Element
		}
		if mo.Order != nil {
			m.order = *mo.Order
		}
		if mo.Required != nil {
			m.required = *mo.Required
		}
		if mo.IgnoreIfNull != nil {
			m.ignoreIfNull = *mo.IgnoreIfNull
		}
		if mo.IgnoreIfDefault != nil {
			m.ignoreIfDefault = *mo.IgnoreIfDefault
		}
		if mo.Default != nil {
			m.hasDefault, m.textDefault, m.defaultText, m.defaultFunc = true, true, *mo.Default, nil
		}
	}
	return b
}

package docmap

import (
	"reflect"
	"strconv"
	"strings"
)

// TagInfo is the mapping configuration carried by a struct field's tags.
type TagInfo struct {
	// Name is the element name; empty when no tag names the field.
	Name            string
	Skip            bool
	Required        bool
	IgnoreIfNull    bool
	IgnoreIfDefault bool
	ID              bool
	Extra           bool
	HasDefault      bool
	Default         string
	HasOrder        bool
	Order           int
}

// ResolveTag applies the repository-wide rule to resolve a struct field's
// mapping configuration.
// Priority for the element name: docmap:"name=..." > bson tag name > (empty,
// left to the element-name convention); "-" in either tag disables the field.
//
// docmap tag options: name=, required, default=, ignoreIfNull, ignoreIfDefault,
// order=, id, extra. Option values cannot contain commas.
// bson tag options honoured: omitempty (same as ignoreIfDefault).
func ResolveTag(sf reflect.StructField) (TagInfo, error) {
	var ti TagInfo
	if dt, ok := sf.Tag.Lookup("docmap"); ok {
		if strings.TrimSpace(dt) == "-" {
			return TagInfo{Skip: true}, nil
		}
		for _, p := range strings.Split(dt, ",") {
			p = strings.TrimSpace(p)
			key, val, hasVal := strings.Cut(p, "=")
			switch key {
			case "":
			case "name":
				ti.Name = val
			case "required":
				ti.Required = true
			case "default":
				ti.HasDefault, ti.Default = true, val
			case "ignoreIfNull":
				ti.IgnoreIfNull = true
			case "ignoreIfDefault":
				ti.IgnoreIfDefault = true
			case "id":
				ti.ID = true
			case "extra":
				ti.Extra = true
			case "order":
				n, err := strconv.Atoi(val)
				if !hasVal || err != nil {
					return TagInfo{}, NewError(KindConfiguration, CodeInvalidMember, nil).
						WithMember(sf.Name).
						WithMessage("invalid order %q", val).
						WithCause(err)
				}
				ti.HasOrder, ti.Order = true, n
			default:
				return TagInfo{}, NewError(KindConfiguration, CodeInvalidMember, nil).
					WithMember(sf.Name).
					WithMessage("unknown docmap tag option %q", key)
			}
		}
	}
	if bt, ok := sf.Tag.Lookup("bson"); ok {
		name, opts, _ := strings.Cut(bt, ",")
		if name == "-" && opts == "" {
			return TagInfo{Skip: true}, nil
		}
		if ti.Name == "" {
			ti.Name = name
		}
		for _, o := range strings.Split(opts, ",") {
			if strings.TrimSpace(o) == "omitempty" {
				ti.IgnoreIfDefault = true
			}
		}
	}
	return ti, nil
}

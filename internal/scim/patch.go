package scim

import (
	"errors"
	"regexp"
	"strings"
)

// ErrPathNotFound is returned when a patch path names an intermediate
// segment that does not exist as an object in the document. The failing
// operation aborts the rest of the batch.
var ErrPathNotFound = errors.New("patch path not found")

// PatchOp is one PATCH instruction. Op is matched exactly against "add",
// "remove", and "replace"; anything else is silently ignored, the same
// fallback philosophy as the filter engine.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

// PatchRequest is the PATCH body envelope. Go's JSON decoding matches
// "Operations" and "operations" alike.
type PatchRequest struct {
	Schemas    []string  `json:"schemas"`
	Operations []PatchOp `json:"Operations"`
}

// ApplyUserOps applies a batch of operations to a User document in order,
// mutating doc in place. It returns ErrPathNotFound when a dotted path
// cannot be navigated, leaving doc partially modified by the preceding
// operations; callers decide whether partially applied state is persisted.
//
// Semantics per operation:
//   - replace path="active": set the active flag to the value as given.
//   - replace/add with any other path: navigate dot-separated segments,
//     requiring every intermediate to already exist as an object, and set
//     the final segment.
//   - replace with no path: shallow-merge an object value into the top
//     level (non-object values are ignored).
//   - remove: silently skipped for Users. Known gap preserved on purpose;
//     IDPs that depend on it will see the attribute survive.
func ApplyUserOps(doc map[string]any, ops []PatchOp) error {
	for _, op := range ops {
		switch op.Op {
		case "replace":
			switch {
			case op.Path == "active":
				doc["active"] = op.Value
			case op.Path != "":
				if err := setPath(doc, op.Path, op.Value); err != nil {
					return err
				}
			default:
				if m, ok := op.Value.(map[string]any); ok {
					for k, v := range m {
						doc[k] = v
					}
				}
			}
		case "add":
			if op.Path != "" {
				if err := setPath(doc, op.Path, op.Value); err != nil {
					return err
				}
			}
		case "remove":
			// Not implemented for Users; skipped.
		}
	}
	return nil
}

// setPath walks dot-separated segments and assigns the final one. Every
// intermediate segment must already exist as an object.
func setPath(doc map[string]any, path string, value any) error {
	segments := strings.Split(path, ".")
	target := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := target[seg].(map[string]any)
		if !ok {
			return ErrPathNotFound
		}
		target = next
	}
	target[segments[len(segments)-1]] = value
	return nil
}

var memberValuePath = regexp.MustCompile(`^members\[value eq "([^"]+)"\]$`)

// ParseMemberPath extracts the member id from a Group removal path of the
// form `members[value eq "<id>"]`.
func ParseMemberPath(path string) (string, bool) {
	m := memberValuePath.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MemberRef is one member entry from a Group document or patch value.
type MemberRef struct {
	Value   string
	Type    string
	Display string
}

// MemberRefs normalizes a patch value or document field into member
// entries. A single object and an array of objects are both accepted.
// Entries without a "value" are returned with Value empty for the caller
// to reject; anything that is not an object at all is dropped.
func MemberRefs(value any) []MemberRef {
	var entries []any
	switch v := value.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return nil
	}

	refs := make([]MemberRef, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		ref := MemberRef{Type: "User"}
		ref.Value, _ = entry["value"].(string)
		if t, ok := entry["type"].(string); ok && t != "" {
			ref.Type = t
		}
		ref.Display, _ = entry["display"].(string)
		refs = append(refs, ref)
	}
	return refs
}

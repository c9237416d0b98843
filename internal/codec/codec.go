// Package codec implements the bidirectional JSON serializer for a
// group view (spec.md §4.2): to/from string, and to/from file via
// atomic write (temp file + rename).
//
// JSON parsing is named an external collaborator in spec.md §1 — only
// its contract (the wire shape below) matters to the core — so this
// package leans on encoding/json directly rather than a third-party
// decoder; see DESIGN.md for the full justification.
package codec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/view"
)

// wireMember is one element of the "members" array.
type wireMember struct {
	Address    string `json:"address"`
	ProviderID int    `json:"provider_id"`
}

// wireView is the JSON object shape of spec.md §4.2.
type wireView struct {
	Transport   string            `json:"transport"`
	Credentials *int64            `json:"credentials,omitempty"`
	Members     []wireMember      `json:"members"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Decoded is a parsed group file: the reconstructed view plus the two
// fields the View type itself doesn't carry.
type Decoded struct {
	View        *view.View
	Transport   string
	Credentials int64
}

// ToString serializes v (with the given transport tag and credentials)
// to its canonical JSON wire form. Ranks are implicit by position.
func ToString(v *view.View, transport string, credentials int64) (string, error) {
	w := wireView{Transport: transport, Credentials: &credentials}

	v.Iterate(func(m *view.Member) bool {
		w.Members = append(w.Members, wireMember{Address: m.Address, ProviderID: int(m.ProviderID)})
		return true
	})
	if len(w.Members) == 0 {
		return "", fmt.Errorf("%w: view has no members", errs.ErrInvalidConfig)
	}

	v.MetadataIterate(func(k, val string) bool {
		if w.Metadata == nil {
			w.Metadata = make(map[string]string)
		}
		w.Metadata[k] = val
		return true
	})

	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrAllocation, err)
	}
	return string(b), nil
}

// FromString validates and parses a group file's JSON text into a new
// View. Ranks are assigned by array position (0, 1, 2, ...).
func FromString(s string) (*Decoded, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}

	membersRaw, ok := raw["members"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"members\"", errs.ErrInvalidConfig)
	}
	var members []json.RawMessage
	if err := json.Unmarshal(membersRaw, &members); err != nil {
		return nil, fmt.Errorf("%w: \"members\" must be an array: %v", errs.ErrInvalidConfig, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: \"members\" must be non-empty", errs.ErrInvalidConfig)
	}

	var transport string
	if t, ok := raw["transport"]; ok {
		if err := json.Unmarshal(t, &transport); err != nil {
			return nil, fmt.Errorf("%w: \"transport\" must be a string: %v", errs.ErrInvalidConfig, err)
		}
	}

	var credentials int64
	if c, ok := raw["credentials"]; ok {
		if err := json.Unmarshal(c, &credentials); err != nil {
			return nil, fmt.Errorf("%w: \"credentials\" must be an integer: %v", errs.ErrInvalidConfig, err)
		}
	}

	v := view.New()
	for i, mr := range members {
		var wm struct {
			Address    *string `json:"address"`
			ProviderID *int64  `json:"provider_id"`
		}
		if err := json.Unmarshal(mr, &wm); err != nil {
			return nil, fmt.Errorf("%w: member %d malformed: %v", errs.ErrInvalidConfig, i, err)
		}
		if wm.Address == nil {
			return nil, fmt.Errorf("%w: member %d missing \"address\"", errs.ErrInvalidConfig, i)
		}
		if wm.ProviderID == nil || *wm.ProviderID < 0 || *wm.ProviderID > 65535 {
			return nil, fmt.Errorf("%w: member %d \"provider_id\" must be in [0,65535]", errs.ErrInvalidConfig, i)
		}
		if _, err := v.AddMember(uint64(i), uint16(*wm.ProviderID), *wm.Address); err != nil {
			return nil, fmt.Errorf("%w: member %d: %v", errs.ErrInvalidConfig, i, err)
		}
	}

	if mdRaw, ok := raw["metadata"]; ok {
		var md map[string]string
		if err := json.Unmarshal(mdRaw, &md); err != nil {
			return nil, fmt.Errorf("%w: \"metadata\" must be an object of string->string: %v", errs.ErrInvalidConfig, err)
		}
		for k, val := range md {
			v.AddMetadata(k, val)
		}
	}

	return &Decoded{View: v, Transport: transport, Credentials: credentials}, nil
}

// WriteFile atomically (over)writes path with v's JSON serialization:
// write path+".swp", fsync, rename over path. Readers always observe
// either the prior complete file or the new one, never a torn write.
func WriteFile(path string, v *view.View, transport string, credentials int64) error {
	s, err := ToString(v, transport, credentials)
	if err != nil {
		return err
	}

	tmp := path + ".swp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	return nil
}

// ReadFile reads and parses the group file at path.
func ReadFile(path string) (*Decoded, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrOther, err)
	}
	return FromString(string(b))
}

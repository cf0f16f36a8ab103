package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID identifies a province, district or city. The dataset writes ids as numbers while the UI
// hands them back as strings, so both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("geo: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the textual id.
func (id ID) String() string { return string(id) }

// Node is one flat dataset record. Parent linkage is by id only.
type Node struct {
	ID         ID
	ProvinceID ID
	DistrictID ID
	// Names maps a locale ("en", "si", "ta") to the localized name.
	Names map[string]string
}

// Name returns the localized name or "" when the node has none for locale.
func (n Node) Name(locale string) string {
	return n.Names[locale]
}

// UnmarshalJSON decodes {id, province_id?, district_id?, name_<locale>...}.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Node
	for key, value := range raw {
		switch {
		case key == "id":
			if err := out.ID.UnmarshalJSON(value); err != nil {
				return err
			}
		case key == "province_id":
			if err := out.ProvinceID.UnmarshalJSON(value); err != nil {
				return err
			}
		case key == "district_id":
			if err := out.DistrictID.UnmarshalJSON(value); err != nil {
				return err
			}
		case strings.HasPrefix(key, "name_"):
			var name *string
			if err := json.Unmarshal(value, &name); err != nil {
				return fmt.Errorf("geo: %s: %w", key, err)
			}
			if name == nil || strings.TrimSpace(*name) == "" {
				continue
			}
			if out.Names == nil {
				out.Names = make(map[string]string)
			}
			out.Names[strings.ToLower(strings.TrimPrefix(key, "name_"))] = strings.TrimSpace(*name)
		}
	}
	if out.ID == "" {
		return fmt.Errorf("geo: node without id")
	}
	*n = out
	return nil
}

// MarshalJSON writes the node back in the dataset layout.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Names)+3)
	out["id"] = n.ID
	if n.ProvinceID != "" {
		out["province_id"] = n.ProvinceID
	}
	if n.DistrictID != "" {
		out["district_id"] = n.DistrictID
	}
	for locale, name := range n.Names {
		out["name_"+locale] = name
	}
	return json.Marshal(out)
}

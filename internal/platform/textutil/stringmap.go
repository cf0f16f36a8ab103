package textutil

import "strings"

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// LastValues flattens multi-valued form input, keeping the last value submitted for each key.
func LastValues(values map[string][]string) map[string]string {
	flat := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) == 0 {
			continue
		}
		flat[key] = list[len(list)-1]
	}
	return NormalizeStringMap(flat)
}

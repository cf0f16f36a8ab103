package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sl-c19-memorial/memorial-web/internal/geo"
)

const testDataset = `{
  "provinces": [
    {"id": 1, "name_en": "Western", "name_si": "බස්නාහිර", "name_ta": "மேல்"},
    {"id": 2, "name_en": "Central", "name_si": "මධ්‍යම", "name_ta": "மத்திய"}
  ],
  "districts": [
    {"id": 1, "province_id": 1, "name_en": "Colombo", "name_si": "කොළඹ", "name_ta": "கொழும்பு"},
    {"id": 2, "province_id": 1, "name_en": "Gampaha", "name_si": "ගම්පහ", "name_ta": "கம்பஹா"},
    {"id": 4, "province_id": 2, "name_en": "Kandy", "name_si": "මහනුවර", "name_ta": "கண்டி"}
  ],
  "cities": [
    {"id": 1, "district_id": 1, "name_en": "Maharagama", "name_si": "මහරගම"},
    {"id": 2, "district_id": 1, "name_en": "Dehiwala", "name_si": "දෙහිවල"},
    {"id": 3, "district_id": 1, "name_en": "Borella"},
    {"id": 7, "district_id": 4, "name_en": "Peradeniya"}
  ]
}`

func newTestDataset(t *testing.T) *geo.Dataset {
	t.Helper()
	ds, err := geo.Decode(strings.NewReader(testDataset))
	if err != nil {
		t.Fatalf("decode dataset: %v", err)
	}
	return ds
}

func newTestLocaleResolver(t *testing.T) *LocaleResolver {
	t.Helper()
	resolver, err := NewLocaleResolver([]string{"en", "si", "ta"}, "en")
	if err != nil {
		t.Fatalf("NewLocaleResolver: %v", err)
	}
	return resolver
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}

func optionIDs(t *testing.T, raw any) []string {
	t.Helper()
	list, ok := raw.([]any)
	if !ok {
		t.Fatalf("expected list, got %T", raw)
	}
	ids := make([]string, 0, len(list))
	for _, item := range list {
		entry, _ := item.(map[string]any)
		id, _ := entry["id"].(string)
		ids = append(ids, id)
	}
	return ids
}

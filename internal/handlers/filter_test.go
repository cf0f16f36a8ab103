package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sl-c19-memorial/memorial-web/internal/filter"
)

func TestFilterOptionsWithoutSelection(t *testing.T) {
	router := newGeoRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/filter/options", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if ids := optionIDs(t, body["provinces"]); len(ids) != 2 {
		t.Fatalf("expected 2 provinces, got %v", ids)
	}
	if ids := optionIDs(t, body["districts"]); len(ids) != 0 {
		t.Fatalf("expected no districts without province, got %v", ids)
	}
	if ids := optionIDs(t, body["cities"]); len(ids) != 0 {
		t.Fatalf("expected no cities without district, got %v", ids)
	}
	if ages := body["ageRanges"].([]any); len(ages) != 3 || ages[0] != "0-30" {
		t.Fatalf("unexpected age ranges %v", ages)
	}
	if genders := body["genders"].([]any); len(genders) != 2 {
		t.Fatalf("unexpected genders %v", genders)
	}
}

func TestFilterOptionsWithDistrict(t *testing.T) {
	router := newGeoRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/filter/options?province=1&district=1&locale=en", nil))

	body := decodeBody(t, rr)
	if ids := optionIDs(t, body["districts"]); strings.Join(ids, ",") != "1,2" {
		t.Fatalf("expected districts 1,2 got %v", ids)
	}
	if ids := optionIDs(t, body["cities"]); strings.Join(ids, ",") != "3,2,1" {
		t.Fatalf("expected sorted cities, got %v", ids)
	}
}

func TestFilterOptionsRejectsDistrictWithoutProvince(t *testing.T) {
	router := newGeoRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/filter/options?district=1", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

type recordingObserver struct {
	actions []string
}

func (o *recordingObserver) Observe(_ context.Context, a filter.Action, _ filter.Selection) {
	o.actions = append(o.actions, a.Type())
}

func TestFilterDispatchAppliesCascade(t *testing.T) {
	observer := &recordingObserver{}
	geoHandlers := NewGeoHandlers(newTestDataset(t), "en")
	router := NewRouter(WithFilterRoutes(NewFilterHandlers(geoHandlers, WithFilterObserver(observer)).Routes))

	payload := `{"selection":{"province":"1","district":"1","city":"2","gender":"Male","init":false},"action":{"type":"PROVINCE","value":2}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/filter/dispatch", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	sel := body["selection"].(map[string]any)
	if sel["province"] != "2" {
		t.Fatalf("expected province 2, got %v", sel["province"])
	}
	if _, ok := sel["district"]; ok {
		t.Fatalf("district should be cleared, got %v", sel["district"])
	}
	if _, ok := sel["city"]; ok {
		t.Fatalf("city should be cleared, got %v", sel["city"])
	}
	if sel["gender"] != "Male" || sel["init"] != false {
		t.Fatalf("unexpected selection %v", sel)
	}
	if body["query"] != "gender=Male&province=2" {
		t.Fatalf("unexpected query %v", body["query"])
	}
	if len(observer.actions) != 1 || observer.actions[0] != "SET_PROVINCE" {
		t.Fatalf("expected one observed SET_PROVINCE, got %v", observer.actions)
	}
}

func TestFilterDispatchReset(t *testing.T) {
	router := newGeoRouter(t)

	payload := `{"selection":{"province":"1","ageRange":"0-30"},"action":{"type":"RESET"}}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/filter/dispatch", strings.NewReader(payload)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	sel := body["selection"].(map[string]any)
	if len(sel) != 1 || sel["init"] != false {
		t.Fatalf("expected empty non-initial selection, got %v", sel)
	}
	if body["query"] != "" {
		t.Fatalf("expected empty query, got %v", body["query"])
	}
}

func TestFilterDispatchRejectsBadInput(t *testing.T) {
	router := newGeoRouter(t)

	cases := map[string]struct {
		payload string
		code    string
	}{
		"unknown action":   {`{"selection":{},"action":{"type":"ZOOM","value":"1"}}`, "unknown_action"},
		"bad age":          {`{"selection":{},"action":{"type":"AGE","value":"5-10"}}`, "unknown_action"},
		"broken cascade":   {`{"selection":{"city":"1"},"action":{"type":"RESET"}}`, "invalid_selection"},
		"not json":         {`selection=1`, "invalid_request"},
		"unexpected field": {`{"selection":{},"action":{"type":"RESET"},"extra":1}`, "invalid_request"},
	}
	for name, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/filter/dispatch", strings.NewReader(tc.payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
		if body := decodeBody(t, rr); body["error"] != tc.code {
			t.Fatalf("%s: expected %s, got %v", name, tc.code, body["error"])
		}
	}
}

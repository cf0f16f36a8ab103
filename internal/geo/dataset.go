package geo

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrUnknownLocale is returned when a derived list is requested for a locale the dataset does not serve.
var ErrUnknownLocale = errors.New("geo: unknown locale")

var defaultLocales = []string{"en", "si", "ta"}

const defaultCacheTTL = time.Hour

// Raw is the on-disk layout of the dataset file.
type Raw struct {
	Provinces []Node `json:"provinces"`
	Districts []Node `json:"districts"`
	Cities    []Node `json:"cities"`
}

// Dataset is the immutable province/district/city hierarchy. It is built once at startup and
// shared read-only; derived lists are memoised per (kind, parent, locale).
type Dataset struct {
	provinces []Node
	districts []Node
	cities    []Node
	locales   []string
	memo      *cache.Cache
}

// Option customises dataset construction.
type Option func(*Dataset)

// WithLocales restricts the locales derived lists may be requested in.
func WithLocales(locales ...string) Option {
	return func(d *Dataset) {
		normalized := make([]string, 0, len(locales))
		for _, locale := range locales {
			if locale = strings.ToLower(strings.TrimSpace(locale)); locale != "" {
				normalized = append(normalized, locale)
			}
		}
		if len(normalized) > 0 {
			d.locales = normalized
		}
	}
}

// WithCacheTTL sets how long derived lists stay memoised.
func WithCacheTTL(ttl time.Duration) Option {
	return func(d *Dataset) {
		if ttl > 0 {
			d.memo = cache.New(ttl, 2*ttl)
		}
	}
}

// New builds a dataset from decoded records. Records are copied.
func New(raw Raw, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		provinces: slices.Clone(raw.Provinces),
		districts: slices.Clone(raw.Districts),
		cities:    slices.Clone(raw.Cities),
		locales:   slices.Clone(defaultLocales),
		memo:      cache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if len(d.provinces) == 0 {
		return nil, errors.New("geo: dataset has no provinces")
	}
	if err := d.checkLinks(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) checkLinks() error {
	provinces := make(map[ID]struct{}, len(d.provinces))
	for _, p := range d.provinces {
		provinces[p.ID] = struct{}{}
	}
	districts := make(map[ID]struct{}, len(d.districts))
	for _, district := range d.districts {
		if _, ok := provinces[district.ProvinceID]; !ok {
			return fmt.Errorf("geo: district %s references unknown province %q", district.ID, district.ProvinceID)
		}
		districts[district.ID] = struct{}{}
	}
	for _, city := range d.cities {
		if _, ok := districts[city.DistrictID]; !ok {
			return fmt.Errorf("geo: city %s references unknown district %q", city.ID, city.DistrictID)
		}
	}
	return nil
}

// Locales returns the locales the dataset serves.
func (d *Dataset) Locales() []string {
	return slices.Clone(d.locales)
}

// Counts reports the number of provinces, districts and cities.
func (d *Dataset) Counts() (provinces, districts, cities int) {
	return len(d.provinces), len(d.districts), len(d.cities)
}

// Province reports whether id names a province.
func (d *Dataset) Province(id ID) (Node, bool) {
	return find(d.provinces, id)
}

// District reports whether id names a district.
func (d *Dataset) District(id ID) (Node, bool) {
	return find(d.districts, id)
}

// City reports whether id names a city.
func (d *Dataset) City(id ID) (Node, bool) {
	return find(d.cities, id)
}

// Provinces returns every province in dataset order.
func (d *Dataset) Provinces(locale string) ([]Node, error) {
	if err := d.checkLocale(locale); err != nil {
		return nil, err
	}
	return slices.Clone(d.provinces), nil
}

// Districts returns the districts whose province_id equals province, in dataset order.
// An empty province yields an empty list.
func (d *Dataset) Districts(province ID) []Node {
	if province == "" {
		return []Node{}
	}
	key := "districts|" + string(province)
	if cached, ok := d.memo.Get(key); ok {
		return slices.Clone(cached.([]Node))
	}
	out := make([]Node, 0)
	for _, node := range d.districts {
		if node.ProvinceID == province {
			out = append(out, node)
		}
	}
	d.memo.SetDefault(key, out)
	return slices.Clone(out)
}

// Cities returns the cities of district that have a name in locale, ordered by that name under
// the locale's collation.
func (d *Dataset) Cities(district ID, locale string) ([]Node, error) {
	if err := d.checkLocale(locale); err != nil {
		return nil, err
	}
	if district == "" {
		return []Node{}, nil
	}
	key := "cities|" + string(district) + "|" + locale
	if cached, ok := d.memo.Get(key); ok {
		return slices.Clone(cached.([]Node)), nil
	}

	out := make([]Node, 0)
	for _, node := range d.cities {
		if node.DistrictID == district && node.Name(locale) != "" {
			out = append(out, node)
		}
	}
	c := collate.New(language.Make(locale))
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].Name(locale), out[j].Name(locale)) < 0
	})

	d.memo.SetDefault(key, out)
	return slices.Clone(out), nil
}

func (d *Dataset) checkLocale(locale string) error {
	if !slices.Contains(d.locales, locale) {
		return fmt.Errorf("%w: %q", ErrUnknownLocale, locale)
	}
	return nil
}

func find(nodes []Node, id ID) (Node, bool) {
	if id == "" {
		return Node{}, false
	}
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

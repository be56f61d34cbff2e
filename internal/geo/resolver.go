// Package geo maps free-form country names, as they appear in public
// datasets, to ISO 3166-1 codes.
package geo

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed countries.csv
var countriesCSV string

// NotCountries lists entity names used by the JHU dataset that are not
// countries and must never be matched to one.
var NotCountries = []string{
	"Diamond Princess",
	"MS Zaandam",
	"Summer Olympics 2020",
	"Winter Olympics 2022",
}

// Country is one ISO 3166-1 entry.
type Country struct {
	Alpha2  string
	Alpha3  string
	Name    string
	Aliases []string
}

// Resolver looks countries up by code, name, alias, substring and finally
// by fuzzy subsequence match.
type Resolver struct {
	countries []Country
	byCode    map[string]int
	byName    map[string]int
	keys      []string
	keyOwner  []int
	excluded  map[string]bool
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
)

// Default returns the resolver over the embedded country table.
func Default() *Resolver {
	defaultOnce.Do(func() {
		r, err := NewResolver(strings.NewReader(countriesCSV), NotCountries...)
		if err != nil {
			panic(fmt.Sprintf("geo: embedded country table: %v", err))
		}
		defaultResolver = r
	})
	return defaultResolver
}

// NewResolver reads a ';'-separated table with columns alpha2, alpha3, name
// and '|'-separated aliases. Names in excluded never resolve.
func NewResolver(table io.Reader, excluded ...string) (*Resolver, error) {
	cr := csv.NewReader(table)
	cr.Comma = ';'
	cr.FieldsPerRecord = 4
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read country table: %w", err)
	}
	r := &Resolver{
		byCode:   map[string]int{},
		byName:   map[string]int{},
		excluded: map[string]bool{},
	}
	for _, n := range excluded {
		r.excluded[fold(n)] = true
	}
	for i, rec := range recs {
		if i == 0 && rec[0] == "alpha2" {
			continue
		}
		c := Country{Alpha2: rec[0], Alpha3: rec[1], Name: rec[2]}
		if rec[3] != "" {
			c.Aliases = strings.Split(rec[3], "|")
		}
		idx := len(r.countries)
		r.countries = append(r.countries, c)
		r.byCode[c.Alpha2] = idx
		r.byCode[c.Alpha3] = idx
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			k := fold(n)
			if prev, dup := r.byName[k]; dup {
				if prev == idx {
					continue
				}
				return nil, fmt.Errorf("country table: %q names both %s and %s", n, r.countries[prev].Alpha3, c.Alpha3)
			}
			r.byName[k] = idx
			r.keys = append(r.keys, k)
			r.keyOwner = append(r.keyOwner, idx)
		}
	}
	return r, nil
}

// Lookup resolves a single name.
func (r *Resolver) Lookup(name string) (Country, bool) {
	q := fold(name)
	if q == "" || r.excluded[q] {
		return Country{}, false
	}
	raw := strings.TrimSpace(name)
	if (len(raw) == 2 || len(raw) == 3) && raw == strings.ToUpper(raw) {
		if idx, ok := r.byCode[raw]; ok {
			return r.countries[idx], true
		}
	}
	if idx, ok := r.byName[q]; ok {
		return r.countries[idx], true
	}
	if idx, ok := r.substring(q); ok {
		return r.countries[idx], true
	}
	if idx, ok := r.fuzzy(q); ok {
		return r.countries[idx], true
	}
	return Country{}, false
}

// Code returns the alpha-3 code for name.
func (r *Resolver) Code(name string) (string, bool) {
	c, ok := r.Lookup(name)
	return c.Alpha3, ok
}

// Map resolves many names, returning name->alpha3 and the sorted names that
// could not be resolved.
func (r *Resolver) Map(names []string) (map[string]string, []string) {
	out := make(map[string]string, len(names))
	var unmapped []string
	for _, n := range names {
		if code, ok := r.Code(n); ok {
			out[n] = code
			continue
		}
		unmapped = append(unmapped, n)
	}
	sort.Strings(unmapped)
	return out, unmapped
}

// substring accepts a match only when exactly one country contains the query
// as a word sequence (or is contained in it).
func (r *Resolver) substring(q string) (int, bool) {
	if len(q) < 4 {
		return 0, false
	}
	found := -1
	for i, k := range r.keys {
		if !containsWords(k, q) && !containsWords(q, k) {
			continue
		}
		owner := r.keyOwner[i]
		if found >= 0 && found != owner {
			return 0, false
		}
		found = owner
	}
	return found, found >= 0
}

// fuzzy falls back to subsequence matching; the best match must be compact
// and strictly better than any match for a different country.
func (r *Resolver) fuzzy(q string) (int, bool) {
	if len(q) < 4 {
		return 0, false
	}
	matches := fuzzy.Find(q, r.keys)
	if len(matches) == 0 {
		return 0, false
	}
	best := matches[0]
	span := best.MatchedIndexes[len(best.MatchedIndexes)-1] - best.MatchedIndexes[0] + 1
	if span > len(q)+len(q)/2 {
		return 0, false
	}
	owner := r.keyOwner[best.Index]
	for _, m := range matches[1:] {
		if m.Score < best.Score {
			break
		}
		if r.keyOwner[m.Index] != owner {
			return 0, false
		}
	}
	return owner, true
}

func containsWords(haystack, needle string) bool {
	i := strings.Index(haystack, needle)
	if i < 0 {
		return false
	}
	end := i + len(needle)
	before := i == 0 || !isWordByte(haystack[i-1])
	after := end == len(haystack) || !isWordByte(haystack[end])
	return before && after
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// fold lowercases, strips accents and trailing markers, and collapses spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.TrimRight(strings.TrimSpace(out), "*")
	return strings.Join(strings.Fields(out), " ")
}

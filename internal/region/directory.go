// Package region resolves region codes to backend base URLs, one table per
// backend service family. Lookups fail closed: an unknown region is a
// client error and is never mapped to a default.
package region

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phrazzld/match-gateway/internal/domain"
)

// Family is a backend service family deployed once per region.
type Family string

const (
	Auth    Family = "auth"
	Match   Family = "match"
	Search  Family = "search"
	Media   Family = "media"
	Payment Family = "payment"
)

// Families lists every known family.
var Families = []Family{Auth, Match, Search, Media, Payment}

// Directory is an immutable region_code → base URL lookup per family.
type Directory struct {
	tables map[Family]map[string]string
}

// New builds a directory from family → code → URL tables. Codes are
// lower-cased and trailing slashes trimmed from URLs.
func New(tables map[string]map[string]string) (*Directory, error) {
	d := &Directory{tables: make(map[Family]map[string]string, len(Families))}
	for _, f := range Families {
		d.tables[f] = map[string]string{}
	}
	for name, table := range tables {
		family := Family(strings.ToLower(name))
		if _, ok := d.tables[family]; !ok {
			return nil, fmt.Errorf("unknown backend family %q", name)
		}
		for code, url := range table {
			code = strings.ToLower(strings.TrimSpace(code))
			url = strings.TrimRight(strings.TrimSpace(url), "/")
			if code == "" || url == "" {
				return nil, fmt.Errorf("empty region entry in family %q", name)
			}
			d.tables[family][code] = url
		}
	}
	return d, nil
}

// fileFormat is the YAML layout of a regions file:
//
//	auth:
//	  jp: https://auth.jp.internal
//	match:
//	  jp: https://match.jp.internal
type fileFormat map[string]map[string]string

// LoadFile reads a YAML regions file and merges base over it; entries in
// base win.
func LoadFile(path string, base map[string]map[string]string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse regions file: %w", err)
	}
	merged := make(map[string]map[string]string, len(parsed)+len(base))
	for family, table := range parsed {
		merged[strings.ToLower(family)] = copyTable(table)
	}
	for family, table := range base {
		family = strings.ToLower(family)
		if merged[family] == nil {
			merged[family] = map[string]string{}
		}
		for code, url := range table {
			merged[family][strings.ToLower(code)] = url
		}
	}
	return New(merged)
}

func copyTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Resolve returns the base URL of family in region code. The lookup is
// case-insensitive; a miss is a client error carrying the offending code.
func (d *Directory) Resolve(family Family, code string) (string, error) {
	table, ok := d.tables[family]
	if !ok {
		return "", domain.ClientError("invalid backend family").WithData("family", string(family))
	}
	url, ok := table[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return "", domain.ClientError("invalid region").WithData("region", code)
	}
	return url, nil
}

// Regions lists the codes configured for family, sorted.
func (d *Directory) Regions(family Family) []string {
	table := d.tables[family]
	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// URLs lists every distinct base URL across all families, sorted. The pool
// manager uses it to pre-register backend domains at startup.
func (d *Directory) URLs() []string {
	seen := map[string]struct{}{}
	for _, table := range d.tables {
		for _, url := range table {
			seen[url] = struct{}{}
		}
	}
	urls := make([]string, 0, len(seen))
	for url := range seen {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Package location canonicalizes noisy listing addresses into the fixed
// district taxonomy used for filtering.
package location

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"estate_sync/internal/textnorm"
)

var (
	streetPrefixes = map[string]bool{
		"ul": true, "ulica": true,
		"al": true, "aleja": true, "aleje": true,
		"pl": true, "plac": true,
		"os": true, "osiedle": true,
	}
	saintForms = map[string]bool{
		"sw": true, "swi": true, "swiety": true, "swietej": true, "swietego": true,
	}
	firstNumber = regexp.MustCompile(`\d+`)
)

// Normalizer resolves street/district input into a canonical district.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	cityKey   string
	streets   map[string]string
	splits    map[string]SplitRule
	districts []districtEntry
}

type districtEntry struct {
	name string
	key  string
}

// NewNormalizer builds the lookup tables for city. It panics if two street
// spellings clean to the same key with different districts.
func NewNormalizer(city string) *Normalizer {
	n := &Normalizer{
		cityKey: textnorm.Fold(city),
		streets: make(map[string]string),
		splits:  make(map[string]SplitRule, len(splitStreets)),
	}

	for district, streets := range streetsByDistrict {
		for _, street := range streets {
			key, _ := cleanStreet(street)
			if prev, ok := n.streets[key]; ok && prev != district {
				panic(fmt.Sprintf("location: street %q mapped to %s and %s", street, prev, district))
			}
			n.streets[key] = district
		}
	}
	for street, rule := range splitStreets {
		key, _ := cleanStreet(street)
		n.splits[key] = rule
	}
	for _, d := range Districts {
		n.districts = append(n.districts, districtEntry{name: d, key: districtKey(d)})
	}

	return n
}

var defaultNormalizer = NewNormalizer(DefaultCity)

// Default returns the shared normalizer for DefaultCity.
func Default() *Normalizer {
	return defaultNormalizer
}

// Resolve maps an address to a canonical district. Empty strings mean the
// value is absent. The boolean is false when nothing could be resolved.
//
// For a city other than the configured one the district hint is returned
// title-cased without consulting the street table.
func (n *Normalizer) Resolve(city, district, street, houseNumber string) (string, bool) {
	district = textnorm.CollapseSpaces(district)

	if strings.TrimSpace(city) != "" && textnorm.Fold(city) != n.cityKey {
		if district == "" {
			return "", false
		}
		return textnorm.Title(district), true
	}

	if key, trailing := cleanStreet(street); key != "" {
		if strings.TrimSpace(houseNumber) == "" {
			houseNumber = trailing
		}
		if rule, ok := n.splits[key]; ok {
			number, ok := ParseHouseNumber(houseNumber)
			if !ok {
				return "", false
			}
			return rule.resolve(number), true
		}
		if d, ok := n.streets[key]; ok {
			return d, true
		}
	}

	if district == "" {
		return "", false
	}
	if d, ok := n.MatchDistrict(district); ok {
		return d, true
	}
	return textnorm.Title(district), true
}

// IsSplitStreet reports whether street depends on the house number.
func (n *Normalizer) IsSplitStreet(street string) bool {
	key, _ := cleanStreet(street)
	_, ok := n.splits[key]
	return ok
}

// MatchDistrict finds the canonical district named by hint: an exact folded
// match first, then whole-word containment in either direction. The longest
// canonical name wins when several are contained in the hint.
func (n *Normalizer) MatchDistrict(hint string) (string, bool) {
	key := districtKey(hint)
	if key == "" {
		return "", false
	}

	for _, d := range n.districts {
		if d.key == key {
			return d.name, true
		}
	}

	padded := " " + key + " "
	best := ""
	bestLen := 0
	for _, d := range n.districts {
		if strings.Contains(padded, " "+d.key+" ") && len(d.key) > bestLen {
			best, bestLen = d.name, len(d.key)
		}
	}
	if best != "" {
		return best, true
	}

	if len(key) < 4 {
		return "", false
	}
	for _, d := range n.districts {
		if strings.Contains(" "+d.key+" ", padded) {
			return d.name, true
		}
	}
	return "", false
}

// ParseHouseNumber extracts the first integer token: "51a", "51/53" and
// "51 m 2" all yield 51.
func ParseHouseNumber(s string) (int, bool) {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cleanStreet returns the lookup key for a street and any house number
// written after the street name ("Bakaliowa 12/3").
func cleanStreet(s string) (key, number string) {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' {
			return r
		}
		return ' '
	}, textnorm.Fold(s))

	tokens := strings.Fields(folded)
	for len(tokens) > 1 && streetPrefixes[tokens[0]] {
		tokens = tokens[1:]
	}
	if len(tokens) == 1 && streetPrefixes[tokens[0]] {
		return "", ""
	}

	for i, tok := range tokens {
		if saintForms[tok] {
			tokens[i] = "swietego"
		}
	}

	for i := 1; i < len(tokens); i++ {
		if unicode.IsDigit(rune(tokens[i][0])) {
			number = strings.Join(tokens[i:], " ")
			tokens = tokens[:i]
			break
		}
	}

	return strings.Join(tokens, " "), number
}

func districtKey(s string) string {
	return strings.Join(strings.FieldsFunc(textnorm.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

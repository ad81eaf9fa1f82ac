package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// stateCodes is the canonical name -> code mapping (50 states + DC). It is
// only read by NewStateTable.
var stateCodes = [...][2]string{
	{"Alabama", "AL"}, {"Alaska", "AK"}, {"Arizona", "AZ"}, {"Arkansas", "AR"},
	{"California", "CA"}, {"Colorado", "CO"}, {"Connecticut", "CT"}, {"Delaware", "DE"},
	{"District of Columbia", "DC"}, {"Florida", "FL"}, {"Georgia", "GA"}, {"Hawaii", "HI"},
	{"Idaho", "ID"}, {"Illinois", "IL"}, {"Indiana", "IN"}, {"Iowa", "IA"},
	{"Kansas", "KS"}, {"Kentucky", "KY"}, {"Louisiana", "LA"}, {"Maine", "ME"},
	{"Maryland", "MD"}, {"Massachusetts", "MA"}, {"Michigan", "MI"}, {"Minnesota", "MN"},
	{"Mississippi", "MS"}, {"Missouri", "MO"}, {"Montana", "MT"}, {"Nebraska", "NE"},
	{"Nevada", "NV"}, {"New Hampshire", "NH"}, {"New Jersey", "NJ"}, {"New Mexico", "NM"},
	{"New York", "NY"}, {"North Carolina", "NC"}, {"North Dakota", "ND"}, {"Ohio", "OH"},
	{"Oklahoma", "OK"}, {"Oregon", "OR"}, {"Pennsylvania", "PA"}, {"Rhode Island", "RI"},
	{"South Carolina", "SC"}, {"South Dakota", "SD"}, {"Tennessee", "TN"}, {"Texas", "TX"},
	{"Utah", "UT"}, {"Vermont", "VT"}, {"Virginia", "VA"}, {"Washington", "WA"},
	{"West Virginia", "WV"}, {"Wisconsin", "WI"}, {"Wyoming", "WY"},
}

// StateTable maps state names (and codes) to upper-case two-letter codes.
//
// A StateTable is immutable after construction and safe for concurrent use.
// The zero value maps nothing; use NewStateTable.
type StateTable struct {
	byName map[string]string
	codes  map[string]struct{}
}

// NewStateTable builds the lookup for the 50 states plus DC.
func NewStateTable() StateTable {
	t := StateTable{
		byName: make(map[string]string, len(stateCodes)),
		codes:  make(map[string]struct{}, len(stateCodes)),
	}
	for _, sc := range stateCodes {
		t.byName[foldName(sc[0])] = sc[1]
		t.codes[sc[1]] = struct{}{}
	}
	return t
}

// Code returns the two-letter code for a full state name or an existing code.
//
// Edge cases:
//   - Matching ignores case and surrounding/repeated whitespace.
//   - A recognised code maps to itself ("ca" -> "CA"), so Code is idempotent.
//   - Unknown names (including territories such as Puerto Rico) return "".
func (t StateTable) Code(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if len(name) == 2 {
		up := strings.ToUpper(name)
		if _, ok := t.codes[up]; ok {
			return up
		}
	}
	return t.byName[foldName(name)]
}

// Len returns the number of names in the table.
func (t StateTable) Len() int { return len(t.byName) }

func foldName(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

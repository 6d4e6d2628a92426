package validate

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Sternrassler/fec-ingest/pkg/client"
	"github.com/Sternrassler/fec-ingest/pkg/store"
)

// Offices accepted for a candidate: House, Senate, President.
var Offices = map[string]bool{"H": true, "S": true, "P": true}

// Candidate is a validated FEC candidate.
// Optional fields are nil when the API omitted them or sent null.
type Candidate struct {
	CandidateID            string
	Name                   string
	Office                 *string
	Party                  *string
	PartyFull              *string
	State                  *string
	District               *string
	IncumbentChallenge     *string
	IncumbentChallengeFull *string
	CandidateStatus        *string
	ActiveThrough          *int
	Cycles                 []int
	ElectionYears          []int
	FederalFundsFlag       *bool
	HasRaisedFunds         *bool
	FirstFileDate          *time.Time
	LastF2Date             *time.Time
	LastFileDate           *time.Time
	LoadDate               *time.Time
}

// Key returns the candidate id.
func (c Candidate) Key() string {
	return c.CandidateID
}

// Row maps the candidate onto store.CandidatesTable.
func (c Candidate) Row() store.Row {
	return store.Row{
		"candidate_id":             c.CandidateID,
		"name":                     c.Name,
		"office":                   deref(c.Office),
		"party":                    deref(c.Party),
		"party_full":               deref(c.PartyFull),
		"state":                    deref(c.State),
		"district":                 deref(c.District),
		"incumbent_challenge":      deref(c.IncumbentChallenge),
		"incumbent_challenge_full": deref(c.IncumbentChallengeFull),
		"candidate_status":         deref(c.CandidateStatus),
		"active_through":           deref(c.ActiveThrough),
		"cycles":                   nonNil(c.Cycles),
		"election_years":           nonNil(c.ElectionYears),
		"federal_funds_flag":       deref(c.FederalFundsFlag),
		"has_raised_funds":         deref(c.HasRaisedFunds),
		"first_file_date":          deref(c.FirstFileDate),
		"last_f2_date":             deref(c.LastF2Date),
		"last_file_date":           deref(c.LastFileDate),
		"load_date":                deref(c.LoadDate),
	}
}

// CandidateValidator validates /candidates/ results.
type CandidateValidator struct{}

// Validate implements Validator.
func (CandidateValidator) Validate(r client.Record) (Candidate, error) {
	var errs fieldErrors
	var c Candidate
	var err error

	c.CandidateID, err = requiredString(r, "candidate_id")
	errs.add("candidate_id", err)

	name, err := requiredString(r, "name")
	errs.add("name", err)
	if err == nil {
		c.Name = NormalizeName(name)
		if c.Name == "" {
			errs.add("name", &FieldError{Field: "name", Reason: "is required"})
		}
	}

	c.Office, err = optString(r, "office")
	errs.add("office", err)
	if c.Office != nil {
		office := strings.ToUpper(*c.Office)
		if !Offices[office] {
			errs.add("office", &FieldError{Field: "office", Reason: "must be one of H, S, P, got " + strconv.Quote(*c.Office)})
		}
		c.Office = &office
	}

	c.District, err = optString(r, "district")
	errs.add("district", err)
	if c.District != nil {
		padded := PadDistrict(*c.District)
		c.District = &padded
	}

	for _, f := range []struct {
		name string
		dst  **string
	}{
		{"party", &c.Party},
		{"party_full", &c.PartyFull},
		{"state", &c.State},
		{"incumbent_challenge", &c.IncumbentChallenge},
		{"incumbent_challenge_full", &c.IncumbentChallengeFull},
		{"candidate_status", &c.CandidateStatus},
	} {
		*f.dst, err = optString(r, f.name)
		errs.add(f.name, err)
	}

	c.ActiveThrough, err = optInt(r, "active_through")
	errs.add("active_through", err)

	c.Cycles, err = intList(r, "cycles")
	errs.add("cycles", err)

	c.ElectionYears, err = intList(r, "election_years")
	errs.add("election_years", err)

	c.FederalFundsFlag, err = optBool(r, "federal_funds_flag")
	errs.add("federal_funds_flag", err)

	c.HasRaisedFunds, err = optBool(r, "has_raised_funds")
	errs.add("has_raised_funds", err)

	c.FirstFileDate, err = optDate(r, "first_file_date")
	errs.add("first_file_date", err)

	c.LastF2Date, err = optDate(r, "last_f2_date")
	errs.add("last_f2_date", err)

	c.LastFileDate, err = optDate(r, "last_file_date")
	errs.add("last_file_date", err)

	c.LoadDate, err = optDateTime(r, "load_date")
	errs.add("load_date", err)

	if err := errs.err(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

var generationalSuffixes = map[string]bool{
	"JR": true, "JR.": true, "SR": true, "SR.": true,
	"II": true, "III": true, "IV": true,
}

var romanNumerals = map[string]bool{"II": true, "III": true, "IV": true}

// NormalizeName turns "LAST, FIRST[, SUFFIX]" into "First Last Suffix" in
// title case. Names without a comma are only title-cased.
func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)

	if strings.Contains(name, ",") {
		parts := strings.Split(name, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		last, given := parts[0], parts[1]
		var suffix string
		if fields := strings.Fields(given); len(fields) > 1 && generationalSuffixes[strings.ToUpper(fields[len(fields)-1])] {
			suffix = fields[len(fields)-1]
			given = strings.Join(fields[:len(fields)-1], " ")
		}

		words := []string{given, last, suffix}
		words = append(words, parts[2:]...)
		name = joinNonEmpty(words)
	}

	return titleCase(name)
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "O'MALLEY" becomes "O'Malley". Roman numeral
// words stay upper case.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}

	words := strings.Split(b.String(), " ")
	for i, w := range words {
		if romanNumerals[strings.ToUpper(w)] {
			words[i] = strings.ToUpper(w)
		}
	}
	return strings.Join(words, " ")
}

// PadDistrict zero-pads all-digit districts to two characters ("9" -> "09").
func PadDistrict(district string) string {
	if district == "" {
		return district
	}
	for _, r := range district {
		if r < '0' || r > '9' {
			return district
		}
	}
	if len(district) < 2 {
		return strings.Repeat("0", 2-len(district)) + district
	}
	return district
}

func joinNonEmpty(words []string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

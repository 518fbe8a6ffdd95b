package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jackzampolin/rfptriage/internal/types"
)

// NormalizeKey lowercases s and collapses every run of non-alphanumerics
// into a single space.
func NormalizeKey(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// SpecKey is the dedup key for a screen: normalized name plus environment.
func SpecKey(s types.ExtractedSpec) string {
	return NormalizeKey(s.Name) + "|" + string(s.Environment)
}

// MergeSpecs folds incoming into existing, merging records that share a
// SpecKey. First-seen order is kept. MergeSpecs(x, x) equals
// MergeSpecs(nil, x).
func MergeSpecs(existing, incoming []types.ExtractedSpec) []types.ExtractedSpec {
	out := make([]types.ExtractedSpec, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, list := range [][]types.ExtractedSpec{existing, incoming} {
		for _, s := range list {
			key := SpecKey(s)
			if i, ok := index[key]; ok {
				out[i] = mergeSpec(out[i], s)
				continue
			}
			s.SourcePages = types.UnionPages(s.SourcePages, nil)
			index[key] = len(out)
			out = append(out, s)
		}
	}
	return out
}

// mergeSpec combines two records for the same screen. The higher-confidence
// record wins scalar fields; ties keep a. Missing values are backfilled
// from the other record and source pages are unioned.
func mergeSpec(a, b types.ExtractedSpec) types.ExtractedSpec {
	win, lose := a, b
	if b.Confidence > a.Confidence {
		win, lose = b, a
	}

	out := win
	out.Location = firstString(win.Location, lose.Location)
	out.Size = firstString(win.Size, lose.Size)
	out.Resolution = firstString(win.Resolution, lose.Resolution)
	out.MountingType = firstString(win.MountingType, lose.MountingType)
	out.SpecialRequirements = firstString(win.SpecialRequirements, lose.SpecialRequirements)
	out.Notes = firstString(win.Notes, lose.Notes)
	out.WidthFt = firstFloat(win.WidthFt, lose.WidthFt)
	out.HeightFt = firstFloat(win.HeightFt, lose.HeightFt)
	out.PixelPitchMM = firstFloat(win.PixelPitchMM, lose.PixelPitchMM)
	out.BrightnessNits = firstFloat(win.BrightnessNits, lose.BrightnessNits)
	if out.Quantity == nil {
		out.Quantity = lose.Quantity
	}
	out.SourcePages = types.UnionPages(a.SourcePages, b.SourcePages)
	return out
}

// MergeRequirements dedups by normalized description. A requirement becomes
// mandatory if any copy says so; category backfills and pages union.
func MergeRequirements(existing, incoming []types.Requirement) []types.Requirement {
	out := make([]types.Requirement, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, list := range [][]types.Requirement{existing, incoming} {
		for _, r := range list {
			key := NormalizeKey(r.Description)
			if i, ok := index[key]; ok {
				cur := out[i]
				cur.Mandatory = cur.Mandatory || r.Mandatory
				cur.Category = firstString(cur.Category, r.Category)
				cur.SourcePages = types.UnionPages(cur.SourcePages, r.SourcePages)
				out[i] = cur
				continue
			}
			r.SourcePages = types.UnionPages(r.SourcePages, nil)
			index[key] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// MergeProject keeps the first non-empty value of each field and unions
// flags.
func MergeProject(a, b types.ProjectInfo) types.ProjectInfo {
	out := types.ProjectInfo{
		ProjectName: firstString(a.ProjectName, b.ProjectName),
		Client:      firstString(a.Client, b.Client),
		Venue:       firstString(a.Venue, b.Venue),
		Location:    firstString(a.Location, b.Location),
		BidDueDate:  firstString(a.BidDueDate, b.BidDueDate),
	}
	seen := make(map[string]bool)
	for _, list := range [][]string{a.Flags, b.Flags} {
		for _, f := range list {
			f = normalizeFlag(f)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out.Flags = append(out.Flags, f)
		}
	}
	sort.Strings(out.Flags)
	return out
}

// normalizeFlag turns "Bid Bond Required" into "bid_bond_required".
func normalizeFlag(f string) string {
	return strings.ReplaceAll(NormalizeKey(f), " ", "_")
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

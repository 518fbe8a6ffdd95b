// Package triage scores document pages for LED-display relevance.
//
// Everything in this package is pure: classification depends only on page
// text, the embedded-image flag, the keyword banks and the thresholds. The
// banks are immutable once built, so a single *Banks value can be shared by
// concurrent classifiers and request-scoped overrides derive new values
// instead of mutating the shared one.
package triage

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Bank names, as used in config and in the disabled_banks override.
const (
	BankStrong  = "strong"
	BankWeak    = "weak"
	BankSupport = "support"
	BankNoise   = "noise"
)

// BankTerms is the config shape of the four keyword banks.
type BankTerms struct {
	Strong  []string `mapstructure:"strong" yaml:"strong" json:"strong"`
	Weak    []string `mapstructure:"weak" yaml:"weak" json:"weak"`
	Support []string `mapstructure:"support" yaml:"support" json:"support"`
	Noise   []string `mapstructure:"noise" yaml:"noise" json:"noise"`
}

// Banks is an immutable set of disjoint keyword banks.
type Banks struct {
	strong  []string
	weak    []string
	support []string
	noise   []string
}

// Matches lists the distinct bank terms found on a page.
type Matches struct {
	Strong  []string `json:"strong,omitempty"`
	Weak    []string `json:"weak,omitempty"`
	Support []string `json:"support,omitempty"`
	Noise   []string `json:"noise,omitempty"`
}

// NewBanks normalizes and copies terms into a new bank set. A term listed in
// two different banks is an error; duplicates within a bank are collapsed.
func NewBanks(t BankTerms) (*Banks, error) {
	owner := make(map[string]string)
	build := func(bank string, terms []string) ([]string, error) {
		out := make([]string, 0, len(terms))
		for _, term := range terms {
			key := strings.TrimSpace(Normalize(term))
			if key == "" {
				continue
			}
			if prev, ok := owner[key]; ok {
				if prev == bank {
					continue
				}
				return nil, fmt.Errorf("term %q appears in both %s and %s banks", key, prev, bank)
			}
			owner[key] = bank
			out = append(out, key)
		}
		return out, nil
	}

	var (
		b   Banks
		err error
	)
	if b.strong, err = build(BankStrong, t.Strong); err != nil {
		return nil, err
	}
	if b.weak, err = build(BankWeak, t.Weak); err != nil {
		return nil, err
	}
	if b.support, err = build(BankSupport, t.Support); err != nil {
		return nil, err
	}
	if b.noise, err = build(BankNoise, t.Noise); err != nil {
		return nil, err
	}
	return &b, nil
}

// DefaultBanks returns the built-in banks.
func DefaultBanks() *Banks {
	b, err := NewBanks(DefaultBankTerms())
	if err != nil {
		panic(fmt.Sprintf("triage: default banks invalid: %v", err))
	}
	return b
}

// Terms returns a copy of the bank contents.
func (b *Banks) Terms() BankTerms {
	return BankTerms{
		Strong:  append([]string(nil), b.strong...),
		Weak:    append([]string(nil), b.weak...),
		Support: append([]string(nil), b.support...),
		Noise:   append([]string(nil), b.noise...),
	}
}

// WithOverrides derives a new bank set with extra strong terms appended and
// the named banks emptied. The receiver is left untouched.
func (b *Banks) WithOverrides(extraStrong, disabled []string) (*Banks, error) {
	t := b.Terms()
	t.Strong = append(t.Strong, extraStrong...)
	for _, name := range disabled {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BankStrong:
			t.Strong = nil
		case BankWeak:
			t.Weak = nil
		case BankSupport:
			t.Support = nil
		case BankNoise:
			t.Noise = nil
		case "":
		default:
			return nil, fmt.Errorf("unknown keyword bank %q", name)
		}
	}
	return NewBanks(t)
}

// Match returns the distinct terms of each bank present in normalized text.
func (b *Banks) Match(normalized string) Matches {
	return Matches{
		Strong:  matchTerms(b.strong, normalized),
		Weak:    matchTerms(b.weak, normalized),
		Support: matchTerms(b.support, normalized),
		Noise:   matchTerms(b.noise, normalized),
	}
}

func matchTerms(terms []string, text string) []string {
	var found []string
	for _, term := range terms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	return found
}

// Normalize folds compatibility forms (PDF ligatures, full-width digits)
// and lowercases text for matching.
func Normalize(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// DefaultBankTerms is the starting vocabulary for LED display bids.
// Weak terms are never substrings of strong ones so a single phrase does
// not count toward two banks.
func DefaultBankTerms() BankTerms {
	return BankTerms{
		Strong: []string{
			"led display", "led screen", "led wall", "led video", "video wall",
			"video board", "videoboard", "scoreboard", "ribbon board", "led ribbon",
			"led module", "led panel", "led tile", "led cabinet", "direct view led",
			"dvled", "fine pitch", "pixel pitch", "digital signage", "led sign",
			"marquee sign", "section 11 61", "section 27 41 16",
		},
		Weak: []string{
			"brightness", "resolution", "refresh rate", "viewing angle",
			"viewing distance", "contrast ratio", "candela", "luminance",
			"grayscale", "aspect ratio", "ip65", "ip54", "cd/m2", "nit brightness",
			"color temperature", "pixel density",
		},
		Support: []string{
			"mounting", "bracket", "rigging", "structural steel", "unistrut",
			"control system", "video processor", "media player", "content management",
			"fiber optic", "cat6", "power distribution", "conduit", "junction box",
			"commissioning", "calibration", "spare parts", "preventive maintenance",
			"sending card", "receiving card", "novastar", "brompton",
		},
		Noise: []string{
			"indemnification", "indemnify", "hold harmless", "liability insurance",
			"certificate of insurance", "bid bond", "performance bond", "payment bond",
			"surety", "liquidated damages", "retainage", "prevailing wage",
			"davis bacon", "governing law", "arbitration", "termination for convenience",
			"affidavit", "notary", "non-collusion", "equal employment opportunity",
			"minority participation", "drug-free workplace", "plumbing", "hvac",
			"roofing", "asbestos",
		},
	}
}

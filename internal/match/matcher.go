// Package match ranks reference records against the attributes extracted
// from a photo: color labels, shape label, and OCR tokens.
package match

import (
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"pillscan/internal/catalog"
	"pillscan/internal/config"
)

var (
	// ErrNoAttributeMatch means the color/shape filter left no candidates.
	ErrNoAttributeMatch = errors.New("no drug matches the given color and shape")
	// ErrNeedsRetake means even the relaxed text match scored too low to be
	// worth presenting; the caller should ask for a better photo.
	ErrNeedsRetake = errors.New("match confidence too low, retake the photo")
)

// Side names which imprint face a candidate matched on.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
	SideNone  Side = ""
)

// Candidate is one ranked identification.
type Candidate struct {
	Record        *catalog.Record
	Score         float64
	HasScore      bool // false on the attribute-only (no imprint) path
	Side          Side
	LowConfidence bool
}

// Result is a non-error match outcome.
type Result struct {
	Candidates []Candidate
	// Degraded is set when the single candidate came from the relaxed
	// fallback rather than the hard threshold.
	Degraded bool
}

// Matcher scores OCR output against a catalog.
type Matcher struct {
	cat *catalog.Catalog
	cfg config.MatchSettings
	log *logrus.Logger
}

func New(cat *catalog.Catalog, cfg config.MatchSettings, log *logrus.Logger) *Matcher {
	return &Matcher{cat: cat, cfg: cfg, log: log}
}

// Match filters the catalog by the extracted attributes and ranks the
// survivors by imprint-text similarity. Passing no colors or no shape skips
// that half of the filter.
func (m *Matcher) Match(tokens []string, colors []string, shape string) (*Result, error) {
	if c, ok := m.keywordHit(tokens); ok {
		return &Result{Candidates: []Candidate{c}}, nil
	}

	ids, err := m.filterByAttributes(colors, shape)
	if err != nil {
		return nil, err
	}
	records := m.cat.Subset(ids)

	if noText(tokens) {
		return m.noTextCandidates(records)
	}
	return m.textCandidates(tokens, records)
}

// noText reports whether OCR produced nothing usable. Clients send the
// literal "None" for an imprint-free pill, the same sentinel ParseImprint
// accepts, so it must not be scored as text.
func noText(tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	return len(tokens) == 1 && strings.EqualFold(tokens[0], "none")
}

// keywordHit short-circuits on a few unambiguous name fragments. Some drugs
// carry a long unique imprint that survives OCR even when everything else in
// the frame is garbage, so a substring hit identifies the record outright.
func (m *Matcher) keywordHit(tokens []string) (Candidate, bool) {
	joined := strings.ToUpper(strings.Join(tokens, ""))
	if joined == "" {
		return Candidate{}, false
	}
	for _, kw := range m.cfg.Keywords {
		kw = strings.ToUpper(kw)
		if kw == "" || !strings.Contains(joined, kw) {
			continue
		}
		var hit Candidate
		m.cat.Each(func(r *catalog.Record) bool {
			if side, ok := imprintContains(r.Imprint, kw); ok {
				hit = Candidate{Record: r, Score: 1.0, HasScore: true, Side: side}
				return false
			}
			return true
		})
		if hit.Record != nil {
			m.log.WithFields(logrus.Fields{"keyword": kw, "record": hit.Record.GenericName}).
				Info("keyword short-circuit match")
			return hit, true
		}
	}
	return Candidate{}, false
}

func imprintContains(imp catalog.Imprint, kw string) (Side, bool) {
	if strings.Contains(strings.ToUpper(imp.Front), kw) {
		return SideFront, true
	}
	if strings.Contains(strings.ToUpper(imp.Back), kw) {
		return SideBack, true
	}
	return SideNone, false
}

// filterByAttributes intersects the per-color ID sets (a candidate must
// carry every selected color) and then the shape's ID set.
func (m *Matcher) filterByAttributes(colors []string, shape string) (catalog.IDSet, error) {
	var ids catalog.IDSet
	for _, color := range colors {
		set := m.cat.IDsByColor(color)
		if ids == nil {
			ids = set
		} else {
			ids = ids.Intersect(set)
		}
	}
	if shape != "" {
		set := m.cat.IDsByShape(shape)
		if ids == nil {
			ids = set
		} else {
			ids = ids.Intersect(set)
		}
	}
	if ids == nil {
		// No attributes selected at all: every record is a candidate.
		ids = catalog.IDSet{}
		m.cat.Each(func(r *catalog.Record) bool {
			ids[r.ID] = struct{}{}
			return true
		})
	}
	if len(ids) == 0 {
		return nil, ErrNoAttributeMatch
	}
	return ids, nil
}

// noTextCandidates returns the filtered records that expect no imprint at
// all, as unscored attribute-only candidates.
func (m *Matcher) noTextCandidates(records []*catalog.Record) (*Result, error) {
	var out []Candidate
	for _, r := range records {
		if r.Imprint.IsNone() {
			out = append(out, Candidate{Record: r})
		}
	}
	if len(out) == 0 {
		return nil, ErrNeedsRetake
	}
	return &Result{Candidates: out}, nil
}

type scored struct {
	record *catalog.Record
	score  float64
	side   Side
}

func (m *Matcher) textCandidates(tokens []string, records []*catalog.Record) (*Result, error) {
	perms := make([]string, 0, 1)
	for _, p := range permutations(tokens) {
		perms = append(perms, strings.ToUpper(strings.Join(p, "")))
	}

	ranked := make([]scored, 0, len(records))
	for _, r := range records {
		s := bestForRecord(perms, r)
		if s.record != nil {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var passed []Candidate
	for _, s := range ranked {
		if s.score < m.cfg.HardThreshold {
			break
		}
		passed = append(passed, Candidate{Record: s.record, Score: s.score, HasScore: true, Side: s.side})
		if len(passed) >= m.cfg.TopN {
			break
		}
	}
	if len(passed) > 0 {
		return &Result{Candidates: passed}, nil
	}

	// Degraded path: the single best match, accepted only above the floor.
	if len(ranked) > 0 && ranked[0].score >= m.cfg.MinTop1Accept {
		best := ranked[0]
		m.log.WithFields(logrus.Fields{"record": best.record.GenericName, "score": best.score}).
			Debug("degraded low-confidence match")
		return &Result{
			Candidates: []Candidate{{
				Record: best.record, Score: best.score, HasScore: true,
				Side: best.side, LowConfidence: true,
			}},
			Degraded: true,
		}, nil
	}
	return nil, ErrNeedsRetake
}

// bestForRecord scores every token permutation against both imprint faces
// and keeps the best side. Records with no imprint text score nothing here.
func bestForRecord(perms []string, r *catalog.Record) scored {
	best := scored{}
	for _, perm := range perms {
		if r.Imprint.Front != "" {
			if s := Similarity(perm, r.Imprint.Front); s > best.score {
				best = scored{record: r, score: s, side: SideFront}
			}
		}
		if r.Imprint.Back != "" {
			if s := Similarity(perm, r.Imprint.Back); s > best.score {
				best = scored{record: r, score: s, side: SideBack}
			}
		}
	}
	return best
}

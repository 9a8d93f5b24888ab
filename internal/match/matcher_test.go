package match

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"pillscan/internal/catalog"
	"pillscan/internal/config"
)

func fixtureCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Record{
		{
			ID: 1, GenericName: "Plainpill",
			Colors: []string{"白色"}, Shape: "圓形",
			Imprint: catalog.ParseImprint("F:NONE|B:NONE"),
		},
		{
			ID: 2, GenericName: "Redwhite",
			Colors: []string{"白色", "紅色"}, Shape: "圓形",
			Imprint: catalog.ParseImprint("F:ABCDEFGHIJ|B:NONE"),
		},
		{
			ID: 3, GenericName: "Redoval",
			Colors: []string{"紅色"}, Shape: "橢圓形",
			Imprint: catalog.ParseImprint("F:XYZ99|B:NONE"),
		},
		{
			ID: 4, GenericName: "Mucolytic",
			Colors: []string{"黃色"}, Shape: "圓形",
			Imprint: catalog.ParseImprint("F:ACETYLCYSTEINE600|B:NONE"),
		},
		{
			ID: 5, GenericName: "Combo",
			Colors: []string{"白色"}, Shape: "圓形",
			Imprint: catalog.ParseImprint("F:ABC123|B:NONE"),
		},
	})
}

func fixtureMatcher() *Matcher {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(fixtureCatalog(), config.MatchSettings{
		HardThreshold: 0.80,
		MinTop1Accept: 0.30,
		TopN:          4,
		Keywords:      []string{"ACETYLCYSTEINE"},
	}, l)
}

func TestFilterIntersectionAcrossColors(t *testing.T) {
	m := fixtureMatcher()
	// White AND red: only record 2 carries both. Union semantics would also
	// return records 1, 3 and 5.
	ids, err := m.filterByAttributes([]string{"白色", "紅色"}, "")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want exactly record 2", ids)
	}
	if _, ok := ids[2]; !ok {
		t.Errorf("ids = %v, want record 2", ids)
	}
}

func TestFilterShapeIntersection(t *testing.T) {
	m := fixtureMatcher()
	ids, err := m.filterByAttributes([]string{"紅色"}, "橢圓形")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want exactly record 3", ids)
	}
}

func TestNoAttributeMatch(t *testing.T) {
	m := fixtureMatcher()
	_, err := m.Match(nil, []string{"黑色"}, "圓形")
	if !errors.Is(err, ErrNoAttributeMatch) {
		t.Errorf("err = %v, want ErrNoAttributeMatch", err)
	}
}

func TestNoTextReturnsImprintFreeRecords(t *testing.T) {
	m := fixtureMatcher()
	res, err := m.Match(nil, []string{"白色"}, "圓形")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.Record.GenericName != "Plainpill" {
		t.Errorf("candidate = %s, want Plainpill", c.Record.GenericName)
	}
	if c.HasScore {
		t.Error("attribute-only candidate must carry no score")
	}
}

func TestNoneTokenTreatedAsNoText(t *testing.T) {
	m := fixtureMatcher()
	// Clients send the literal "None" for an imprint-free pill. Scored as
	// text it would lose against every imprint and trigger a retake.
	for _, tok := range []string{"None", "NONE", "none"} {
		res, err := m.Match([]string{tok}, []string{"白色"}, "圓形")
		if err != nil {
			t.Fatalf("Match(%q): %v", tok, err)
		}
		if len(res.Candidates) != 1 || res.Candidates[0].Record.GenericName != "Plainpill" {
			t.Fatalf("Match(%q) candidates = %+v, want Plainpill only", tok, res.Candidates)
		}
		if res.Candidates[0].HasScore {
			t.Errorf("Match(%q): attribute-only candidate must carry no score", tok)
		}
	}
}

func TestExactTextMatch(t *testing.T) {
	m := fixtureMatcher()
	// Token order is scrambled relative to the printed text; the permutation
	// sweep still finds the exact concatenation.
	res, err := m.Match([]string{"123", "ABC"}, []string{"白色"}, "圓形")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	top := res.Candidates[0]
	if top.Record.GenericName != "Combo" {
		t.Errorf("top = %s, want Combo", top.Record.GenericName)
	}
	if top.Score != 1.0 || top.Side != SideFront {
		t.Errorf("top score=%v side=%s, want 1.0 front", top.Score, top.Side)
	}
	if top.LowConfidence {
		t.Error("exact match must not be flagged low confidence")
	}
}

func TestHardThresholdBoundary(t *testing.T) {
	m := fixtureMatcher()

	// LCS 8 of 10 = 0.80: accepted at the hard threshold.
	res, err := m.Match([]string{"ABCDEFGH"}, []string{"白色", "紅色"}, "圓形")
	if err != nil {
		t.Fatalf("Match at 0.80: %v", err)
	}
	if res.Degraded || res.Candidates[0].LowConfidence {
		t.Error("score 0.80 must pass the hard threshold, not the degraded path")
	}
	if res.Candidates[0].Score != 0.80 {
		t.Errorf("score = %v, want 0.80", res.Candidates[0].Score)
	}

	// LCS 7 of 10 = 0.70: under the hard threshold, over the floor, so a
	// single low-confidence candidate comes back.
	res, err = m.Match([]string{"ABCDEFG"}, []string{"白色", "紅色"}, "圓形")
	if err != nil {
		t.Fatalf("Match at 0.70: %v", err)
	}
	if !res.Degraded || len(res.Candidates) != 1 || !res.Candidates[0].LowConfidence {
		t.Errorf("score 0.70 should degrade to one low-confidence candidate, got %+v", res)
	}
}

func TestDegradedFloorBoundary(t *testing.T) {
	m := fixtureMatcher()

	// LCS 3 of 10 = 0.30: exactly at the floor, accepted.
	res, err := m.Match([]string{"ABC"}, []string{"白色", "紅色"}, "圓形")
	if err != nil {
		t.Fatalf("Match at 0.30: %v", err)
	}
	if !res.Candidates[0].LowConfidence {
		t.Error("floor score must be flagged low confidence")
	}

	// LCS 2 of 10 = 0.20: below the floor.
	_, err = m.Match([]string{"AB"}, []string{"白色", "紅色"}, "圓形")
	if !errors.Is(err, ErrNeedsRetake) {
		t.Errorf("err = %v, want ErrNeedsRetake", err)
	}
}

func TestNeedsRetakeOnGarbageTokens(t *testing.T) {
	m := fixtureMatcher()
	_, err := m.Match([]string{"QQQ"}, []string{"白色", "紅色"}, "圓形")
	if !errors.Is(err, ErrNeedsRetake) {
		t.Errorf("err = %v, want ErrNeedsRetake", err)
	}
}

func TestKeywordShortCircuit(t *testing.T) {
	m := fixtureMatcher()
	// The keyword bypasses the attribute filter entirely: these colors match
	// nothing in the catalog.
	res, err := m.Match([]string{"XACETYLCYSTEINE600Y"}, []string{"黑色"}, "其他")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Record.GenericName != "Mucolytic" {
		t.Fatalf("candidates = %+v, want Mucolytic", res.Candidates)
	}
	if res.Candidates[0].Score != 1.0 {
		t.Errorf("keyword score = %v, want 1.0", res.Candidates[0].Score)
	}
}

func TestTopNLimit(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	var records []catalog.Record
	for i := 1; i <= 6; i++ {
		records = append(records, catalog.Record{
			ID: catalog.RecordID(i), GenericName: "Dup",
			Colors: []string{"白色"}, Shape: "圓形",
			Imprint: catalog.ParseImprint("F:ABC123|B:NONE"),
		})
	}
	m := New(catalog.New(records), config.MatchSettings{
		HardThreshold: 0.80, MinTop1Accept: 0.30, TopN: 4,
	}, l)

	res, err := m.Match([]string{"ABC123"}, []string{"白色"}, "圓形")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(res.Candidates) != 4 {
		t.Errorf("candidates = %d, want top-4 cap", len(res.Candidates))
	}
}

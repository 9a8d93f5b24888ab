// Package catalog holds the read-only reference table of known pills.
//
// The catalog is loaded once at startup from the reference spreadsheet and
// never mutated afterwards, so concurrent pipeline runs can share it freely.
package catalog

import (
	"strings"
)

// RecordID is the primary key of a reference record (the spreadsheet's
// usage-order column).
type RecordID int

// IDSet is a set of record IDs.
type IDSet map[RecordID]struct{}

// Intersect returns the intersection of two sets.
func (s IDSet) Intersect(other IDSet) IDSet {
	out := IDSet{}
	for id := range s {
		if _, ok := other[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Clone returns a copy of the set.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Imprint is the expected printed text on the pill's faces. "NONE" sides are
// stored as empty strings.
type Imprint struct {
	Front string
	Back  string
}

// IsNone reports a pill with no imprint on either face.
func (i Imprint) IsNone() bool {
	return i.Front == "" && i.Back == ""
}

// ParseImprint parses the spreadsheet's "F:<text>|B:<text>" field. Sides
// marked NONE (any case) become empty. Free text without the F:/B: framing is
// treated as front-side text.
func ParseImprint(field string) Imprint {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(field), " ", ""))
	if s == "" {
		return Imprint{}
	}

	var imp Imprint
	framed := false
	for _, part := range strings.Split(s, "|") {
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		framed = true
		if val == "NONE" {
			val = ""
		}
		switch key {
		case "F":
			imp.Front = val
		case "B":
			imp.Back = val
		}
	}
	if !framed && s != "NONE" {
		imp.Front = s
	}
	return imp
}

// Record is one catalogued pill.
type Record struct {
	ID          RecordID
	GenericName string
	Indications string
	Precautions string
	SideEffects string
	Colors      []string // catalog color tokens, pipe-delimited in the sheet
	Shape       string
	Imprint     Imprint
	BillingCode string
}

// Catalog is the immutable reference table with its attribute indexes.
type Catalog struct {
	records    map[RecordID]*Record
	order      []RecordID
	colorIndex map[string]IDSet
	shapeIndex map[string]IDSet
}

// New builds a catalog (and its indexes) from records. Records with colors
// outside the known vocabulary still index under whatever token they carry;
// the loader reports those separately.
func New(records []Record) *Catalog {
	c := &Catalog{
		records:    make(map[RecordID]*Record, len(records)),
		colorIndex: make(map[string]IDSet),
		shapeIndex: make(map[string]IDSet),
	}
	for i := range records {
		r := &records[i]
		if _, dup := c.records[r.ID]; dup {
			continue
		}
		c.records[r.ID] = r
		c.order = append(c.order, r.ID)

		for _, color := range r.Colors {
			if c.colorIndex[color] == nil {
				c.colorIndex[color] = IDSet{}
			}
			c.colorIndex[color][r.ID] = struct{}{}
		}
		if c.shapeIndex[r.Shape] == nil {
			c.shapeIndex[r.Shape] = IDSet{}
		}
		c.shapeIndex[r.Shape][r.ID] = struct{}{}
	}
	return c
}

// Record returns the record for id.
func (c *Catalog) Record(id RecordID) (*Record, bool) {
	r, ok := c.records[id]
	return r, ok
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.order)
}

// IDsByColor returns the IDs tagged with the color. The returned set is a
// copy and safe to mutate.
func (c *Catalog) IDsByColor(color string) IDSet {
	return c.colorIndex[color].Clone()
}

// IDsByShape returns the IDs tagged with the shape, as a copy.
func (c *Catalog) IDsByShape(shape string) IDSet {
	return c.shapeIndex[shape].Clone()
}

// Each visits every record in load order.
func (c *Catalog) Each(fn func(*Record) bool) {
	for _, id := range c.order {
		if !fn(c.records[id]) {
			return
		}
	}
}

// Subset returns the records of the given IDs in load order.
func (c *Catalog) Subset(ids IDSet) []*Record {
	var out []*Record
	for _, id := range c.order {
		if _, ok := ids[id]; ok {
			out = append(out, c.records[id])
		}
	}
	return out
}

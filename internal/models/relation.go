package models

import (
	"fmt"
	"strings"
)

// RelationKind is the type of a cross-reference between two records.
type RelationKind string

const (
	RelationSupersedes RelationKind = "supersedes"
	RelationDeprecates RelationKind = "deprecates"
	RelationAmends     RelationKind = "amends"
	RelationLinks      RelationKind = "links"
)

// RelationKinds lists every kind in a stable order.
var RelationKinds = []RelationKind{RelationSupersedes, RelationDeprecates, RelationAmends, RelationLinks}

// Phrase placeholders. '#' is replaced with the counterpart's link label and
// '%' with the link reason.
const (
	LabelPlaceholder  = "#"
	ReasonPlaceholder = "%"
)

// ReasonSuffix is appended (after translation) to link phrases when a reason
// is given.
const ReasonSuffix = "for reason %"

// Direction says which side of a relation a status line lives on.
type Direction string

const (
	// DirectionFrom lines live in the record being superseded, deprecated,
	// amended or linked and point at the newer record.
	DirectionFrom Direction = "from"
	// DirectionTo lines live in the newer record and point back.
	DirectionTo Direction = "to"
)

// Relation describes the canonical phrases of one kind.
type Relation struct {
	Kind RelationKind
	// FromPhrase is written into the "from" record and embeds the "to" label.
	FromPhrase string
	// ToPhrase is written into the "to" record and embeds the "from" label.
	ToPhrase string
	// PruneStatus drops the stale Approved/Proposed line from the "from" record.
	PruneStatus bool
}

var relations = map[RelationKind]Relation{
	RelationSupersedes: {Kind: RelationSupersedes, FromPhrase: "Superseded by #", ToPhrase: "Supersedes #", PruneStatus: true},
	RelationDeprecates: {Kind: RelationDeprecates, FromPhrase: "Deprecated by #", ToPhrase: "Deprecates #", PruneStatus: true},
	RelationAmends:     {Kind: RelationAmends, FromPhrase: "Amended by #", ToPhrase: "Amends #"},
	RelationLinks:      {Kind: RelationLinks, FromPhrase: "Linked to #", ToPhrase: "Linked to #"},
}

// RelationFor returns the phrase set of kind.
func RelationFor(kind RelationKind) (Relation, error) {
	r, ok := relations[kind]
	if !ok {
		return Relation{}, fmt.Errorf("unknown relation kind %q", kind)
	}
	return r, nil
}

// ParseRelationKind accepts the kind names and their common aliases.
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "supersede", "supersedes", "supercede", "supercedes":
		return RelationSupersedes, nil
	case "deprecate", "deprecates":
		return RelationDeprecates, nil
	case "amend", "amends":
		return RelationAmends, nil
	case "link", "links":
		return RelationLinks, nil
	}
	return "", fmt.Errorf("unknown relation kind %q", s)
}

// Phrase returns the canonical phrase for the given side.
func (r Relation) Phrase(d Direction) string {
	if d == DirectionFrom {
		return r.FromPhrase
	}
	return r.ToPhrase
}

// Reciprocal returns the direction the counterpart line must have.
func (d Direction) Reciprocal() Direction {
	if d == DirectionFrom {
		return DirectionTo
	}
	return DirectionFrom
}

// Link is one parsed relation line found in a record's status block.
type Link struct {
	Source     int          `json:"source"`
	Kind       RelationKind `json:"kind"`
	Direction  Direction    `json:"direction"`
	Target     int          `json:"target"`
	TargetPath string       `json:"target_path"`
	Line       string       `json:"line"`
}

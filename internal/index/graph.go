package index

import (
	"fmt"
	"sort"

	"github.com/starford/decisionrecords/internal/models"
)

// GraphNode is one record in the relation graph.
type GraphNode struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// GraphEdge points from the newer record to the one it supersedes,
// deprecates, amends or links to.
type GraphEdge struct {
	From int                 `json:"from"`
	To   int                 `json:"to"`
	Kind models.RelationKind `json:"kind"`
}

// Graph returns every record and the distinct relations between them. A
// relation is reported once even when both records carry their line.
func (db *DB) Graph() ([]GraphNode, []GraphEdge, error) {
	recs, err := db.ListRecords("")
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]GraphNode, 0, len(recs))
	for _, r := range recs {
		nodes = append(nodes, GraphNode{ID: r.ID, Path: r.Path, Title: r.Title, Status: r.Status})
	}

	rows, err := db.conn.Query(`SELECT ` + relationColumns + ` FROM relations`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph relations: %w", err)
	}
	links, err := scanLinks(rows)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[GraphEdge]bool)
	edges := make([]GraphEdge, 0, len(links))
	for _, l := range links {
		e := edgeOf(l)
		if seen[e] {
			continue
		}
		seen[e] = true
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return nodes, edges, nil
}

// edgeOf normalises a relation line to the edge it describes. Link lines are
// symmetric and are ordered by identifier.
func edgeOf(l models.Link) GraphEdge {
	switch {
	case l.Kind == models.RelationLinks:
		return GraphEdge{From: min(l.Source, l.Target), To: max(l.Source, l.Target), Kind: l.Kind}
	case l.Direction == models.DirectionTo:
		return GraphEdge{From: l.Source, To: l.Target, Kind: l.Kind}
	default:
		return GraphEdge{From: l.Target, To: l.Source, Kind: l.Kind}
	}
}

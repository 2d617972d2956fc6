package ingest

import (
	"reflect"
	"testing"
)

func TestTaxonomyAssignCategories(t *testing.T) {
	tax := NewTaxonomy()
	tax.AddSector("ai", []string{"machine-learning", "neural-network", "transformer"})
	tax.AddSector("web", []string{"html", "css", "javascript"})
	tax.AddEvent("release", []string{"launched", "released", "announced"})

	cats := tax.AssignCategories([]string{"new", "transformer", "model", "released"})
	if !reflect.DeepEqual(cats, []string{"ai", "release"}) {
		t.Errorf("AssignCategories = %v", cats)
	}
}

func TestTaxonomyNoMatch(t *testing.T) {
	tax := NewTaxonomy()
	tax.AddSector("ai", []string{"machine-learning"})

	if cats := tax.AssignCategories([]string{"hello", "world"}); len(cats) != 0 {
		t.Errorf("Tokens with no matches should return empty categories, got %v", cats)
	}
	if got := tax.Categorize("hello world"); got != "" {
		t.Errorf("Categorize = %q, want empty", got)
	}
}

func TestTaxonomyCaseInsensitive(t *testing.T) {
	tax := NewTaxonomy()
	tax.AddRegion("latam", []string{"Ecuador", "Peru"})

	if cats := tax.AssignCategories([]string{"ECUADOR"}); len(cats) != 1 || cats[0] != "latam" {
		t.Errorf("AssignCategories = %v", cats)
	}
}

func TestTaxonomyCategorizeJoinsSorted(t *testing.T) {
	tax := NewTaxonomy()
	tax.AddSector("semantic-web", []string{"linked data", "ontologies"})
	tax.AddSector("databases", []string{"sparql", "sql"})
	tax.AddRegion("andes", []string{"cuenca"})

	got := tax.Categorize("Ontologies and SPARQL endpoints for Linked Data in Cuenca")
	if got != "andes, databases, semantic-web" {
		t.Errorf("Categorize = %q", got)
	}
	if tax.Len() != 3 {
		t.Errorf("Len = %d", tax.Len())
	}
}

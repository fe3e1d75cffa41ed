package graph

import (
	"reflect"
	"testing"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

func buildReport() *Graph {
	g := New()
	g.AddNode(&Node{IObjectID: 1, ObjectType: "STIX_Package"})
	g.AddNode(&Node{IObjectID: 2, ObjectType: domain.EntityIndicator})
	g.AddNode(&Node{IObjectID: 3, ObjectType: "AddressObject"})
	g.AddNode(&Node{IObjectID: 4, ObjectType: domain.EntityThreatActor})
	g.AddEdge(Edge{From: 1, To: 2})
	g.AddEdge(Edge{From: 1, To: 4})
	g.AddEdge(Edge{From: 2, To: 3})
	g.AddEdge(Edge{From: 2, To: 3})
	return g
}

func TestAncestors(t *testing.T) {
	g := buildReport()

	var ids []int64
	for _, n := range g.Ancestors(3) {
		ids = append(ids, n.IObjectID)
	}
	if !reflect.DeepEqual(ids, []int64{2, 1}) {
		t.Errorf("Ancestors(3) = %v, want [2 1]", ids)
	}
	if len(g.Children(2)) != 1 {
		t.Errorf("duplicate edge should be ignored, got %d children", len(g.Children(2)))
	}
	if len(g.Parents(1)) != 0 {
		t.Error("root must have no parents")
	}
}

func TestNodesAreOrdered(t *testing.T) {
	g := buildReport()
	nodes := g.Nodes()
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].IObjectID >= nodes[i].IObjectID {
			t.Fatalf("nodes not ordered: %d before %d", nodes[i-1].IObjectID, nodes[i].IObjectID)
		}
	}
}

func TestExtractEssence(t *testing.T) {
	indicator := &Node{
		ObjectType: domain.EntityIndicator,
		Facts: []Fact{
			{Term: "Title", Value: "Dropper C2"},
			{Term: "Confidence/Value", Value: "High"},
			{Term: "Kill_Chain_Phases/Kill_Chain_Phase", Attribute: "name", Value: "Delivery"},
			{Term: "Kill_Chain_Phases/Kill_Chain_Phase", Attribute: "name", Value: "C2"},
			{Term: "Kill_Chain_Phases/Kill_Chain_Phase", Attribute: "ordinality", Value: "3"},
		},
	}

	e, ok := ExtractEssence(indicator)
	if !ok {
		t.Fatal("indicator must yield an essence")
	}
	if e.Title != "Dropper C2" || e.Confidence != "High" {
		t.Errorf("unexpected essence %+v", e)
	}
	if !reflect.DeepEqual(e.KillChainPhases, []string{"C2", "Delivery"}) {
		t.Errorf("kill chain phases = %v", e.KillChainPhases)
	}

	actor := &Node{
		ObjectType: domain.EntityThreatActor,
		Facts:      []Fact{{Term: "Identity/Name", Value: "APT-X"}},
	}
	e, _ = ExtractEssence(actor)
	if !reflect.DeepEqual(e.Names, []string{"APT-X"}) {
		t.Errorf("actor names = %v", e.Names)
	}

	if _, ok := ExtractEssence(&Node{ObjectType: "AddressObject"}); ok {
		t.Error("observables have no essence")
	}
}

func TestFactPath(t *testing.T) {
	if p := (Fact{Term: "Address_Value"}).Path(); p != "Address_Value" {
		t.Errorf("Path = %q", p)
	}
	if p := (Fact{Term: "Address", Attribute: "category"}).Path(); p != "Address@category" {
		t.Errorf("Path = %q", p)
	}
}

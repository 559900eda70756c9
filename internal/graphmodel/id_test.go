package graphmodel

import "testing"

func TestEntityIDStability(t *testing.T) {
	e := Entity{
		FilePath: "test.c",
		Type:     EntityFunction,
		Name:     "add",
		Location: Location{Start: Position{Index: 18}, End: Position{Index: 58}},
	}
	id1 := EntityID(e.Key())
	id2 := EntityID(e.Key())
	if id1 != id2 {
		t.Fatalf("entity ID not stable: %s != %s", id1, id2)
	}
	if len(id1) != idLength {
		t.Fatalf("expected id length %d, got %d (%s)", idLength, len(id1), id1)
	}
}

func TestEntityIDChangesWithSpan(t *testing.T) {
	base := EntityKey{FilePath: "test.c", Type: EntityFunction, Name: "add", Start: 0, End: 10}
	moved := base
	moved.End = 11
	if EntityID(base) == EntityID(moved) {
		t.Fatal("expected different IDs for different spans")
	}
}

func TestRelationshipIDStability(t *testing.T) {
	k := RelationshipKey{FromID: "a", ToID: "b", Type: RelImports}
	if RelationshipID(k) != RelationshipID(k) {
		t.Fatal("relationship ID not stable")
	}
}

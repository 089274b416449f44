package repo

import (
	"context"
	"errors"
	"testing"
)

func TestPropertyOwnershipAndAgents(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p, err := CreateProperty(ctx, db, "owner-1", "Acme Support", "acme.example")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if _, err := AssignAgent(ctx, db, p.ID, "agent-1"); err != nil {
		t.Fatalf("assign agent: %v", err)
	}

	if ok, err := IsPropertyOwner(ctx, db, p.ID, "owner-1"); err != nil || !ok {
		t.Fatalf("owner check: %v %v", ok, err)
	}
	if ok, _ := IsPropertyOwner(ctx, db, p.ID, "agent-1"); ok {
		t.Fatal("agent is not the owner")
	}
	if ok, err := IsPropertyAgent(ctx, db, p.ID, "agent-1"); err != nil || !ok {
		t.Fatalf("agent check: %v %v", ok, err)
	}
	if ok, _ := IsPropertyAgent(ctx, db, p.ID, "stranger"); ok {
		t.Fatal("stranger passed the agent check")
	}

	owned, err := ListOwnedPropertyIDs(ctx, db, "owner-1")
	if err != nil || len(owned) != 1 || owned[0] != p.ID {
		t.Fatalf("owned: %v err=%v", owned, err)
	}
	assigned, err := ListAgentPropertyIDs(ctx, db, "agent-1")
	if err != nil || len(assigned) != 1 || assigned[0] != p.ID {
		t.Fatalf("assigned: %v err=%v", assigned, err)
	}
	if none, err := ListOwnedPropertyIDs(ctx, db, "stranger"); err != nil || len(none) != 0 {
		t.Fatalf("stranger owns: %v err=%v", none, err)
	}
}

func TestVisitorRepo(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p, err := CreateProperty(ctx, db, "owner-1", "Acme Support", "acme.example")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	v, err := CreateVisitor(ctx, db, p.ID, "sess-abc")
	if err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	got, err := GetVisitor(ctx, db, v.ID)
	if err != nil || got.SessionID != "sess-abc" || got.PropertyID != p.ID {
		t.Fatalf("get visitor: %+v err=%v", got, err)
	}
	if _, err := GetVisitor(ctx, db, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageRepo_CreateListPage(t *testing.T) {
	db := newRepoDB(t)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := CreateMessage(db, "c1", "visitor", content); err != nil {
			t.Fatalf("create %q: %v", content, err)
		}
	}

	total, err := CountMessages(db, "c1")
	if err != nil || total != 3 {
		t.Fatalf("count: %d err=%v", total, err)
	}

	all, err := ListMessages(db, "c1", 0)
	if err != nil || len(all) != 3 || all[0].Content != "one" {
		t.Fatalf("list: %v err=%v", all, err)
	}

	page, err := ListMessagesPage(db, "c1", 1, 2)
	if err != nil || len(page) != 2 || page[0].Content != "two" {
		t.Fatalf("page: %v err=%v", page, err)
	}

	m, err := GetMessage(db, all[2].ID)
	if err != nil || m.Content != "three" {
		t.Fatalf("get: %+v err=%v", m, err)
	}
}

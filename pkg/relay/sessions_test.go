package relay

import "testing"

func TestSessionTable_CreateAndLookup(t *testing.T) {
	tbl := NewSessionTable()

	sessionID := tbl.Create(1, 2, "agent-1", "Claw")
	if sessionID == "" {
		t.Fatal("Create returned empty session id")
	}
	if tbl.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d; want 1", tbl.ActiveCount())
	}

	s, ok := tbl.Get(sessionID)
	if !ok {
		t.Fatal("Get: session not found")
	}
	if s.AgentConn != 1 || s.ClientConn != 2 || s.AgentID != "agent-1" || s.AgentName != "Claw" {
		t.Errorf("session = %+v", s)
	}

	if id, _, ok := tbl.FindByAgent(1); !ok || id != sessionID {
		t.Errorf("FindByAgent = (%q, %v); want (%q, true)", id, ok, sessionID)
	}
	if id, _, ok := tbl.FindByClient(2); !ok || id != sessionID {
		t.Errorf("FindByClient = (%q, %v); want (%q, true)", id, ok, sessionID)
	}
	if _, _, ok := tbl.FindByAgent(99); ok {
		t.Error("FindByAgent(99) found a session")
	}
}

func TestSessionTable_UniqueIDs(t *testing.T) {
	tbl := NewSessionTable()
	seen := make(map[string]bool)
	for i := range 100 {
		id := tbl.Create(ConnID(i*2), ConnID(i*2+1), "a", "A")
		if seen[id] {
			t.Fatalf("session id %q reused", id)
		}
		seen[id] = true
	}
}

func TestSessionTable_IdempotentRemove(t *testing.T) {
	tbl := NewSessionTable()
	sessionID := tbl.Create(1, 2, "agent-1", "Claw")

	if !tbl.Remove(sessionID) {
		t.Error("first Remove = false; want true")
	}
	if tbl.Remove(sessionID) {
		t.Error("second Remove = true; want false")
	}
	if tbl.Remove("never-existed") {
		t.Error("Remove(nonexistent) = true; want false")
	}
	if tbl.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d; want 0", tbl.ActiveCount())
	}
}

func TestSessionTable_RemoveByConn(t *testing.T) {
	tbl := NewSessionTable()
	sessionID := tbl.Create(1, 2, "agent-1", "Claw")

	id, s, ok := tbl.RemoveByAgent(1)
	if !ok || id != sessionID || s.ClientConn != 2 {
		t.Fatalf("RemoveByAgent = (%q, %+v, %v)", id, s, ok)
	}
	if _, _, ok := tbl.RemoveByAgent(1); ok {
		t.Error("second RemoveByAgent succeeded")
	}
	// Reverse indexes were scrubbed with the session.
	if _, _, ok := tbl.FindByClient(2); ok {
		t.Error("FindByClient found a removed session")
	}

	sessionID = tbl.Create(3, 4, "agent-2", "Claw")
	if id, _, ok := tbl.RemoveByClient(4); !ok || id != sessionID {
		t.Errorf("RemoveByClient = (%q, %v); want (%q, true)", id, ok, sessionID)
	}
}

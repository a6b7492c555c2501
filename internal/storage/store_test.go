package storage

import "testing"

func TestConnStringEmptyPath(t *testing.T) {
	if got := ConnString("", ModeReadWrite, OpenFlags{}); got != "" {
		t.Errorf("ConnString(\"\") = %q, want empty", got)
	}
}

func TestConnStringReadOnlyAddsModeRO(t *testing.T) {
	got := ConnString("catalog.db", ModeRead, OpenFlags{})
	if !contains(got, "mode=ro") {
		t.Errorf("ConnString(ModeRead) = %q, want mode=ro", got)
	}
}

func TestConnStringEnableForeignKeys(t *testing.T) {
	got := ConnString("catalog.db", ModeReadWrite, OpenFlags{EnableForeignKeys: true})
	if !contains(got, "_pragma=foreign_keys(ON)") {
		t.Errorf("ConnString(EnableForeignKeys) = %q, want a foreign_keys pragma", got)
	}
}

func TestConnStringNoJournalSkipsWAL(t *testing.T) {
	got := ConnString("catalog.db", ModeReadWrite, OpenFlags{NoJournal: true})
	if contains(got, "journal_mode") {
		t.Errorf("ConnString(NoJournal) = %q, want no journal_mode pragma", got)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

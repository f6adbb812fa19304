package domain

import "testing"

func TestMerge_OverrideWins(t *testing.T) {
	base := Vars{"port": "8501", "OPENAI_API_KEY": "base"}
	over := Vars{"OPENAI_API_KEY": "override", "PINECONE_API_KEY": "x"}

	got := Merge(base, over)

	if got["port"] != "8501" {
		t.Fatalf("expected port=8501, got %q", got["port"])
	}
	if got["OPENAI_API_KEY"] != "override" {
		t.Fatalf("expected override to win, got %q", got["OPENAI_API_KEY"])
	}
	if got["PINECONE_API_KEY"] != "x" {
		t.Fatalf("expected override-only key, got %q", got["PINECONE_API_KEY"])
	}

	// Merge must not mutate inputs.
	if base["OPENAI_API_KEY"] != "base" {
		t.Fatal("Merge mutated base map")
	}
}

func TestMerge_NilInputs(t *testing.T) {
	got := Merge(nil, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestGetSet(t *testing.T) {
	var vars Vars
	vars = Set(vars, "port", "8501")

	v, ok := Get(vars, "port")
	if !ok || v != "8501" {
		t.Fatalf("expected port=8501, got %q ok=%v", v, ok)
	}

	_, ok = Get(nil, "port")
	if ok {
		t.Fatal("Get on nil map should report missing")
	}
}

func TestExportableVars(t *testing.T) {
	in := Vars{
		"OPENAI_API_KEY":   "sk-dummy",
		"PINECONE_API_KEY": "pc-dummy",
		"port":             "8501",
		"base_url":         "http://localhost:8501",
		"2FA_TOKEN":        "nope", // leading digit is not a valid env key
		"":                 "empty",
	}

	got := ExportableVars(in)

	if len(got) != 2 {
		t.Fatalf("expected 2 exportable vars, got %d: %v", len(got), got)
	}
	if got["OPENAI_API_KEY"] != "sk-dummy" || got["PINECONE_API_KEY"] != "pc-dummy" {
		t.Fatalf("unexpected exportable set: %v", got)
	}
}

package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "dataset", "index", "check"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestDatasetCmdIncludesSubcommands(t *testing.T) {
	cmd := buildDatasetCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"create", "populate", "list"} {
		if !names[name] {
			t.Fatalf("expected dataset subcommand %q to be registered", name)
		}
	}
}

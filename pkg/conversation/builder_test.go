package conversation

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

var (
	self = chat.User{ID: "1", Username: "lupos", GlobalName: "Lupos"}
	rex  = chat.User{ID: "123", Username: "rex", GlobalName: "rex the great"}
	ana  = chat.User{ID: "456", Username: "ana"}
)

func TestBuild(t *testing.T) {
	window := []chat.Message{
		{Author: rex, Content: "anyone up?"},
		{Author: self, Content: "*yawns* always."},
		{Author: ana, Content: "<@1> draw me a moon"},
	}

	got := Build("SYSTEM", window, self.ID, "describe me a moon")
	want := []providers.Message{
		{Role: providers.RoleSystem, Content: "SYSTEM"},
		{Role: providers.RoleUser, Name: "rex_the_great", Content: "Rex the great said anyone up?:"},
		{Role: providers.RoleAssistant, Name: "Lupos", Content: "*yawns* always."},
		{Role: providers.RoleUser, Name: "ana", Content: "Ana said describe me a moon:"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_EmptyWindow(t *testing.T) {
	got := Build("SYSTEM", nil, self.ID, "ignored")
	if len(got) != 1 || got[0].Role != providers.RoleSystem {
		t.Errorf("Build(nil) = %+v, want only the system entry", got)
	}
}

func TestBuild_FinalResponderMessageKeepsContent(t *testing.T) {
	window := []chat.Message{{Author: self, Content: "awoo"}}
	got := Build("S", window, self.ID, "rewritten")
	if got[1].Content != "awoo" {
		t.Errorf("assistant content = %q, want %q", got[1].Content, "awoo")
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"":     "",
		"rex":  "Rex",
		"Rex":  "Rex",
		"élan": "Élan",
		"1abc": "1abc",
	}
	for in, want := range tests {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

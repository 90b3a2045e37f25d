package toolchain

import (
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	result, err := Render("stubgen {{component}} -o {{stubs_dir}}", Vars{
		"component": {"orders"},
		"stubs_dir": {"/b/stubs/orders"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "stubgen orders -o /b/stubs/orders" {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVars(t *testing.T) {
	_, err := Render("{{a}} and {{b}}", Vars{"a": {"x"}})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "b") {
		t.Errorf("error should mention missing variable, got: %v", err)
	}
}

func TestRender_Conditional(t *testing.T) {
	tmpl := "compose {{wasm}}{{#if deps}} --deps {{deps}}{{/if}}"

	got, err := Render(tmpl, Vars{"wasm": {"a.wasm"}, "deps": {"b", "c"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "compose a.wasm --deps b c" {
		t.Errorf("got %q", got)
	}

	got, err = Render(tmpl, Vars{"wasm": {"a.wasm"}, "deps": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "compose a.wasm" {
		t.Errorf("got %q", got)
	}
}

func TestRender_NestedConditional(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{/if}}."
	got, err := Render(tmpl, Vars{"a": {"1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A." {
		t.Errorf("got %q", got)
	}
}

func TestRender_BrokenConditionals(t *testing.T) {
	if _, err := Render("x{{/if}}", Vars{}); err == nil {
		t.Error("expected error for dangling {{/if}}")
	}
	if _, err := Render("{{#if a}}x", Vars{"a": {"1"}}); err == nil {
		t.Error("expected error for unclosed block")
	}
}

func TestRender_QuotesWords(t *testing.T) {
	got, err := Render("meta {{pkg}} {{deps}}", Vars{
		"pkg":  {"shop:my orders"},
		"deps": {"inventory", "it's"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `meta 'shop:my orders' inventory 'it'"'"'s'`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_EmptyValues(t *testing.T) {
	tmpl := "cp {{src}}{{#if dst}} {{dst}}{{/if}}"
	tests := []struct {
		name string
		dst  []string
		want string
	}{
		{"unset", nil, "cp /c/x.wasm"},
		{"empty word", []string{""}, "cp /c/x.wasm"},
		{"set", []string{"/out/x.wasm"}, "cp /c/x.wasm /out/x.wasm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tmpl, Vars{"src": {"/c/x.wasm"}, "dst": tt.dst})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	got, err := Render("touch {{empty}}", Vars{"empty": Word("")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "touch " {
		t.Errorf("got %q", got)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "''"},
		{"/b/orders.wasm", "/b/orders.wasm"},
		{"shop:orders", "shop:orders"},
		{"with space", "'with space'"},
		{"it's", `'it'"'"'s'`},
		{"$(rm -rf /)", "'$(rm -rf /)'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

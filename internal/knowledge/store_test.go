package knowledge

import (
	"strings"
	"testing"
)

func TestFormatSnippets_Empty(t *testing.T) {
	got := FormatSnippets(nil)
	if got != "Nenhuma informação encontrada na base de conhecimento." {
		t.Errorf("unexpected empty rendering: %q", got)
	}
}

func TestFormatSnippets_Numbered(t *testing.T) {
	got := FormatSnippets([]Snippet{
		{Title: "Drywall padrão", Content: "R$ 90 por m² instalado.", Score: 0.9},
		{Content: "Atendemos Brasília e entorno.", Score: 0.7},
	})
	if !strings.Contains(got, "1. Drywall padrão\nR$ 90 por m² instalado.") {
		t.Errorf("first snippet missing title line: %q", got)
	}
	if !strings.Contains(got, "2. Atendemos Brasília e entorno.") {
		t.Errorf("untitled snippet must render content only: %q", got)
	}
	if !strings.Contains(got, "\n\n2.") {
		t.Errorf("snippets must be blank-line separated: %q", got)
	}
}

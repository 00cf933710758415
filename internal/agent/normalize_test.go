package agent

import (
	"strings"
	"testing"
)

func TestNormalizeReply_Idempotent(t *testing.T) {
	inputs := []string{
		"Olá! Tudo bem?",
		"- item um\n- item dois\n- item três",
		"**negrito** e *itálico* no meio",
		`Primeira linha\nSegunda linha`,
		`Parágrafo um\n\nParágrafo dois`,
		"Muitas\n\n\n\n\nquebras",
		"1. primeiro\n2. segundo\n3. terceiro",
		"  espaços nas pontas  ",
		`Misturado: **forte** \n - lista \n\n fim`,
	}
	for _, in := range inputs {
		once := NormalizeReply(in)
		twice := NormalizeReply(once)
		if once != twice {
			t.Errorf("not idempotent:\ninput: %q\nonce:  %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestNormalizeReply_StripsListMarkers(t *testing.T) {
	got := NormalizeReply("Trabalhamos com:\n- paredes\n- forros\n- divisórias")
	if strings.Contains(got, "- ") {
		t.Errorf("hyphen markers must be stripped: %q", got)
	}
	got = NormalizeReply("Opções:\n• gesso\n• drywall")
	if strings.Contains(got, "•") {
		t.Errorf("bullet markers must be stripped: %q", got)
	}
	got = NormalizeReply("Passos:\n1. medir\n2. orçar\n3. instalar")
	if strings.Contains(got, "1. ") || strings.Contains(got, "2. ") {
		t.Errorf("numbered markers must be stripped: %q", got)
	}
	if !strings.Contains(got, "medir") || !strings.Contains(got, "instalar") {
		t.Errorf("list content must survive: %q", got)
	}
}

func TestNormalizeReply_StripsEmphasis(t *testing.T) {
	got := NormalizeReply("O valor é **R$ 90** por *metro quadrado*.")
	if got != "O valor é R$ 90 por metro quadrado." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestNormalizeReply_EscapedNewlines(t *testing.T) {
	got := NormalizeReply(`Primeiro parágrafo.\n\nSegundo parágrafo.`)
	if got != "Primeiro parágrafo.\n\nSegundo parágrafo." {
		t.Errorf("double escaped newline must become paragraph break: %q", got)
	}

	got = NormalizeReply(`linha um\nlinha dois`)
	if got != "linha um\nlinha dois" {
		t.Errorf("single escaped newline must become line break: %q", got)
	}

	got = NormalizeReply(`com espaços \n\n em volta`)
	if got != "com espaços\n\nem volta" {
		t.Errorf("surrounding spaces must be absorbed: %q", got)
	}

	got = NormalizeReply(`barra dupla\\num texto`)
	if strings.Contains(got, `\n`) {
		t.Errorf("double-backslash sequence must be converted: %q", got)
	}
}

func TestNormalizeReply_CollapsesBreaksAndTrims(t *testing.T) {
	got := NormalizeReply("\n\n  Olá!\n\n\n\n\nTudo bem?  \n\n")
	if got != "Olá!\n\nTudo bem?" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestNormalizeReply_PlainTextUntouched(t *testing.T) {
	in := "Oi! Tudo bem? 😊\n\nFazemos instalação de drywall sim. Qual o tamanho do ambiente?"
	if got := NormalizeReply(in); got != in {
		t.Errorf("clean text must pass through unchanged:\nin:  %q\nout: %q", in, got)
	}
}

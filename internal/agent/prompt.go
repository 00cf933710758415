package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/atendezap/atendezap/internal/media"
	"github.com/atendezap/atendezap/internal/queue"
	"github.com/atendezap/atendezap/internal/store"
)

var weekdaysPT = [...]string{
	"Domingo", "Segunda-feira", "Terça-feira", "Quarta-feira",
	"Quinta-feira", "Sexta-feira", "Sábado",
}

// systemPrompt builds the persona instructions. The markdown prohibition
// is deliberate: replies go straight to WhatsApp, where list markers and
// emphasis asterisks read as noise.
func systemPrompt(agentName, companyName string, now time.Time) string {
	tomorrow := now.AddDate(0, 0, 1).Format("02/01/2006")
	nextWeek := now.AddDate(0, 0, 7).Format("02/01/2006")

	return fmt.Sprintf(`<quem_voce_eh>
Você é %s, a agente inteligente da %s.
Seu papel é atender clientes pelo WhatsApp com profissionalismo, simpatia e eficiência.

Você é especializada em drywall, gesso, forros e divisórias.
</quem_voce_eh>

<suas_funcoes>
1. Esclarecer dúvidas sobre serviços, preços, instalação e manutenção
2. Agendar, reagendar e cancelar visitas técnicas
3. Consultar disponibilidade de horários
4. Fornecer informações precisas usando a base de conhecimento
5. Gerar orçamentos preliminares quando solicitado
</suas_funcoes>

<instrucoes_comportamento>
1. SEMPRE leia o histórico fornecido antes de responder. Não pergunte novamente informações que o cliente já forneceu e seja coerente com as respostas anteriores.

2. SEMPRE consulte a base de conhecimento (buscar_conhecimento) quando o cliente perguntar sobre serviços, preços, processos ou garantias. NUNCA invente informações, preços ou prazos.

3. Para agendar, consultar disponibilidade, cancelar ou remarcar visitas técnicas, use a ferramenta agendamento com a intenção adequada.

4. Data e hora atuais: %s (%s). Para "amanhã", calcule como %s. Para "semana que vem", calcule a partir de %s.

5. Seja natural e humanizada: linguagem calorosa, respostas curtas (2 a 4 parágrafos), sem repetir sempre as mesmas frases.

6. Quando não souber a resposta mesmo após consultar a base de conhecimento, NUNCA diga apenas "não sei". Ofereça uma visita técnica como solução.
</instrucoes_comportamento>

<formato_resposta>
VOCÊ ESTÁ PROIBIDA DE USAR QUALQUER FORMATAÇÃO MARKDOWN.

JAMAIS use hífens ou asteriscos para listar, negrito (**texto**), itálico (*texto*), bullets (•) ou numeração (1. 2. 3.). Se precisar listar coisas, escreva em texto corrido e natural, como em uma conversa de WhatsApp.

NUNCA escreva códigos de escape como \n ou \\n. Para separar parágrafos, deixe uma linha em branco entre eles.

Use emojis ocasionalmente para humanizar (😊 👍 🏗️ 📅), sem exagerar. Finalize perguntando se o cliente tem mais dúvidas, variando a forma.

LEMBRE-SE: você é %s, uma pessoa real conversando pelo WhatsApp. Use expressões naturais como "olha", "sabe", "certinho", "a gente".
</formato_resposta>`,
		agentName, companyName,
		now.Format("02/01/2006 15:04:05"), weekdaysPT[now.Weekday()],
		tomorrow, nextWeek,
		agentName,
	)
}

// AggregateFragments joins a drained buffer into one labeled turn text.
// A single plain-text fragment passes through unlabeled; mixed or
// multiple fragments get per-message labels so the model can tell a
// transcript from typed text.
func AggregateFragments(fragments []queue.Fragment) string {
	if len(fragments) == 0 {
		return ""
	}
	if len(fragments) == 1 && fragments[0].Kind != media.KindAudio && fragments[0].Kind != media.KindImage {
		return strings.TrimSpace(fragments[0].Content)
	}

	parts := make([]string, 0, len(fragments))
	for i, f := range fragments {
		content := strings.TrimSpace(f.Content)
		switch f.Kind {
		case media.KindAudio:
			parts = append(parts, fmt.Sprintf("[Mensagem %d - Áudio transcrito]: %s", i+1, content))
		case media.KindImage:
			parts = append(parts, fmt.Sprintf("[Mensagem %d - Imagem]: %s", i+1, content))
		default:
			parts = append(parts, fmt.Sprintf("[Mensagem %d]: %s", i+1, content))
		}
	}
	return strings.Join(parts, "\n\n")
}

// renderTurnInput prepends recent history to the aggregated turn. Only
// the most recent renderLimit entries are written out; older ones are
// loaded but dropped, keeping the prompt bounded.
func renderTurnInput(history []store.HistoryEntry, agentName string, renderLimit int, turnText string) string {
	if len(history) == 0 {
		return turnText
	}
	if renderLimit > 0 && len(history) > renderLimit {
		history = history[len(history)-renderLimit:]
	}

	var b strings.Builder
	b.WriteString("=== HISTÓRICO DA CONVERSA ===\n")
	for _, e := range history {
		role := agentName
		if e.Role == "user" {
			role = "Cliente"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n=== MENSAGEM ATUAL ===\n")
	b.WriteString(turnText)
	return b.String()
}

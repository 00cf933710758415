package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/providers"
	"github.com/atendezap/atendezap/internal/store"
)

// Result is the shape every scheduling operation returns to the model.
type Result struct {
	Sucesso  bool                   `json:"sucesso"`
	Mensagem string                 `json:"mensagem"`
	Dados    map[string]interface{} `json:"dados"`
}

func (r Result) encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"sucesso":false,"mensagem":"erro interno","dados":{}}`
	}
	return string(b)
}

// dateFormats are tried in order when parsing model-provided dates.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// SchedulingTool books, queries, cancels and reschedules visit slots
// against the appointment store.
type SchedulingTool struct {
	store     store.AppointmentStore
	loc       *time.Location
	startHour int
	endHour   int
	slot      time.Duration
	now       func() time.Time
}

func NewSchedulingTool(st store.AppointmentStore, cfg config.SchedulingConfig) (*SchedulingTool, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	slot := time.Duration(cfg.SlotMinutes) * time.Minute
	if slot <= 0 {
		slot = time.Hour
	}
	return &SchedulingTool{
		store:     st,
		loc:       loc,
		startHour: cfg.DayStartHour,
		endHour:   cfg.DayEndHour,
		slot:      slot,
		now:       time.Now,
	}, nil
}

func (t *SchedulingTool) Name() string { return "agendamento" }

func (t *SchedulingTool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name: "agendamento",
			Description: "Gerencia agendamentos de visita técnica: consultar horários disponíveis, " +
				"agendar, cancelar ou atualizar um agendamento existente.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"nome_cliente": map[string]interface{}{
						"type":        "string",
						"description": "Nome completo do cliente",
					},
					"telefone_cliente": map[string]interface{}{
						"type":        "string",
						"description": "Telefone do cliente com DDD, ex: 61987654321",
					},
					"data_consulta_reuniao": map[string]interface{}{
						"type":        "string",
						"description": "Data/hora desejada, formato ISO 8601 ou brasileiro (25/10/2025 14:00)",
					},
					"intencao": map[string]interface{}{
						"type": "string",
						"enum": []string{"consultar", "agendar", "cancelar", "atualizar"},
						"description": "consultar = ver horários livres; agendar = criar; " +
							"cancelar = remover; atualizar = remarcar",
					},
					"informacao_extra": map[string]interface{}{
						"type": "string",
						"description": "Contexto adicional: 'período da manhã' / 'período da tarde', " +
							"ou a nova data ao atualizar como 'nova_data:DD/MM/YYYY HH:MM'",
					},
				},
				"required": []string{"nome_cliente", "telefone_cliente", "data_consulta_reuniao", "intencao"},
			},
		},
	}
}

func (t *SchedulingTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	intent := strings.ToLower(strings.TrimSpace(stringArg(args, "intencao")))
	name := strings.TrimSpace(stringArg(args, "nome_cliente"))
	phone := strings.TrimSpace(stringArg(args, "telefone_cliente"))
	dateStr := strings.TrimSpace(stringArg(args, "data_consulta_reuniao"))
	extra := stringArg(args, "informacao_extra")

	slog.Info("scheduling tool invoked", "intent", intent, "client", name)

	var res Result
	switch intent {
	case "consultar":
		res = t.queryAvailability(ctx, dateStr, extra)
	case "agendar":
		res = t.create(ctx, name, phone, dateStr, extra)
	case "cancelar":
		res = t.cancel(ctx, name, phone, dateStr)
	case "atualizar":
		res = t.update(ctx, name, phone, dateStr, extra)
	default:
		res = Result{
			Mensagem: fmt.Sprintf("Intenção inválida: %s. Use: consultar, agendar, cancelar ou atualizar", intent),
			Dados:    map[string]interface{}{},
		}
	}
	return res.encode(), nil
}

// parseDate tries each accepted format; naive formats assume the
// business timezone.
func (t *SchedulingTool) parseDate(s string) (time.Time, error) {
	for _, layout := range dateFormats {
		if parsed, err := time.ParseInLocation(layout, s, t.loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("formato de data inválido: %s", s)
}

func (t *SchedulingTool) queryAvailability(ctx context.Context, dateStr, extra string) Result {
	day, err := t.parseDate(dateStr)
	if err != nil {
		return Result{Mensagem: err.Error(), Dados: map[string]interface{}{}}
	}
	now := t.now().In(t.loc)
	dayEnd := time.Date(day.Year(), day.Month(), day.Day(), t.endHour, 0, 0, 0, t.loc)
	if dayEnd.Before(now) {
		return Result{Mensagem: "Não é possível consultar horários no passado", Dados: map[string]interface{}{}}
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.loc)
	booked, err := t.store.Between(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		slog.Error("availability lookup failed", "error", err)
		return Result{Mensagem: "Erro ao consultar horários", Dados: map[string]interface{}{}}
	}

	extra = strings.ToLower(extra)
	wantAfternoon := strings.Contains(extra, "tarde")
	wantMorning := strings.Contains(extra, "manhã") || strings.Contains(extra, "manha")

	var free []map[string]string
	for h := t.startHour; h < t.endHour; h++ {
		start := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, t.loc)
		end := start.Add(t.slot)
		if !start.After(now) {
			continue
		}
		if wantAfternoon && start.Hour() < 12 {
			continue
		}
		if wantMorning && start.Hour() >= 12 {
			continue
		}
		if overlapsAny(start, end, booked) {
			continue
		}
		free = append(free, map[string]string{
			"inicio": start.Format(time.RFC3339),
			"fim":    end.Format(time.RFC3339),
		})
	}

	return Result{
		Sucesso:  true,
		Mensagem: fmt.Sprintf("Encontrados %d horários disponíveis", len(free)),
		Dados: map[string]interface{}{
			"horarios":        free,
			"data_referencia": day.Format("02/01/2006"),
		},
	}
}

func (t *SchedulingTool) create(ctx context.Context, name, phone, dateStr, extra string) Result {
	start, err := t.parseDate(dateStr)
	if err != nil {
		return Result{Mensagem: err.Error(), Dados: map[string]interface{}{}}
	}
	if !start.After(t.now()) {
		return Result{Mensagem: "Não é possível agendar no passado.", Dados: map[string]interface{}{}}
	}
	end := start.Add(t.slot)

	conflicts, err := t.store.Between(ctx, start, end)
	if err != nil {
		slog.Error("conflict check failed", "error", err)
		return Result{Mensagem: "Erro ao verificar disponibilidade", Dados: map[string]interface{}{}}
	}
	if len(conflicts) > 0 {
		return Result{Mensagem: "Horário já está ocupado. Por favor, escolha outro horário.", Dados: map[string]interface{}{}}
	}

	created, err := t.store.Create(ctx, store.Appointment{
		ClientPhone: phone,
		ClientName:  name,
		StartsAt:    start,
		EndsAt:      end,
		Notes:       strings.TrimSpace(extra),
		Status:      "scheduled",
	})
	if err != nil {
		slog.Error("appointment create failed", "error", err)
		return Result{Mensagem: "Erro ao criar agendamento", Dados: map[string]interface{}{}}
	}

	return Result{
		Sucesso:  true,
		Mensagem: fmt.Sprintf("Agendamento confirmado para %s no dia %s", name, start.In(t.loc).Format("02/01/2006 às 15:04")),
		Dados: map[string]interface{}{
			"agendamento_id": created.ID,
			"inicio":         start.Format(time.RFC3339),
			"fim":            end.Format(time.RFC3339),
		},
	}
}

// findAppointment locates the client's appointment near the given time.
// The window is loose so "cancela minha visita de amanhã às 14h" finds
// the 14:00 booking even when the model passed only the date.
func (t *SchedulingTool) findAppointment(ctx context.Context, name, phone string, around time.Time) (*store.Appointment, error) {
	booked, err := t.store.Between(ctx, around.Add(-time.Hour), around.Add(2*time.Hour))
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for i := range booked {
		a := booked[i]
		if phone != "" && a.ClientPhone == phone {
			return &a, nil
		}
		if needle != "" && strings.Contains(strings.ToLower(a.ClientName), needle) {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

// locate resolves which appointment an intent refers to. With a usable
// date it searches around it; without one ("cancela minha visita") it
// falls back to the client's next upcoming booking.
func (t *SchedulingTool) locate(ctx context.Context, name, phone, dateStr string) (*store.Appointment, error) {
	if around, err := t.parseDate(dateStr); err == nil {
		return t.findAppointment(ctx, name, phone, around)
	}
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return t.store.NextForClient(ctx, phone, t.now())
}

func (t *SchedulingTool) cancel(ctx context.Context, name, phone, dateStr string) Result {
	appt, err := t.locate(ctx, name, phone, dateStr)
	if err == store.ErrNotFound {
		return Result{
			Mensagem: fmt.Sprintf("Não foi encontrado agendamento para %s nesta data", name),
			Dados:    map[string]interface{}{},
		}
	}
	if err != nil {
		slog.Error("appointment lookup failed", "error", err)
		return Result{Mensagem: "Erro ao buscar agendamento", Dados: map[string]interface{}{}}
	}

	if err := t.store.Cancel(ctx, appt.ID); err != nil {
		slog.Error("appointment cancel failed", "error", err, "id", appt.ID)
		return Result{Mensagem: "Erro ao cancelar agendamento", Dados: map[string]interface{}{}}
	}
	return Result{
		Sucesso:  true,
		Mensagem: fmt.Sprintf("Agendamento de %s cancelado com sucesso.", name),
		Dados: map[string]interface{}{
			"data": appt.StartsAt.In(t.loc).Format("02/01/2006 às 15:04"),
		},
	}
}

func (t *SchedulingTool) update(ctx context.Context, name, phone, dateStr, extra string) Result {
	var newDateStr string
	if idx := strings.Index(extra, "nova_data:"); idx >= 0 {
		newDateStr = strings.TrimSpace(extra[idx+len("nova_data:"):])
	}
	if newDateStr == "" {
		return Result{
			Mensagem: "Para atualizar, forneça a nova data em informacao_extra como 'nova_data:DD/MM/YYYY HH:MM'",
			Dados:    map[string]interface{}{},
		}
	}

	newStart, err := t.parseDate(newDateStr)
	if err != nil {
		return Result{Mensagem: err.Error(), Dados: map[string]interface{}{}}
	}
	if !newStart.After(t.now()) {
		return Result{Mensagem: "Não é possível agendar no passado.", Dados: map[string]interface{}{}}
	}
	newEnd := newStart.Add(t.slot)

	appt, err := t.locate(ctx, name, phone, dateStr)
	if err == store.ErrNotFound {
		return Result{
			Mensagem: fmt.Sprintf("Não foi encontrado agendamento para %s nesta data", name),
			Dados:    map[string]interface{}{},
		}
	}
	if err != nil {
		slog.Error("appointment lookup failed", "error", err)
		return Result{Mensagem: "Erro ao buscar agendamento", Dados: map[string]interface{}{}}
	}

	conflicts, err := t.store.Between(ctx, newStart, newEnd)
	if err != nil {
		slog.Error("conflict check failed", "error", err)
		return Result{Mensagem: "Erro ao verificar disponibilidade", Dados: map[string]interface{}{}}
	}
	for _, c := range conflicts {
		if c.ID != appt.ID {
			return Result{Mensagem: "Novo horário já está ocupado. Por favor, escolha outro horário.", Dados: map[string]interface{}{}}
		}
	}

	if err := t.store.Reschedule(ctx, appt.ID, newStart, newEnd); err != nil {
		slog.Error("appointment reschedule failed", "error", err, "id", appt.ID)
		return Result{Mensagem: "Erro ao atualizar agendamento", Dados: map[string]interface{}{}}
	}
	return Result{
		Sucesso:  true,
		Mensagem: fmt.Sprintf("Agendamento de %s atualizado para %s", name, newStart.In(t.loc).Format("02/01/2006 às 15:04")),
		Dados: map[string]interface{}{
			"agendamento_id": appt.ID,
			"novo_horario":   newStart.Format(time.RFC3339),
		},
	}
}

func overlapsAny(start, end time.Time, booked []store.Appointment) bool {
	for _, a := range booked {
		if start.Before(a.EndsAt) && a.StartsAt.Before(end) {
			return true
		}
	}
	return false
}

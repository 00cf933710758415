package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/store"
)

type fakeAppointments struct {
	appts       []store.Appointment
	createCalls int
	cancelled   []string
	rescheduled []string
}

func (f *fakeAppointments) Between(ctx context.Context, from, to time.Time) ([]store.Appointment, error) {
	var out []store.Appointment
	for _, a := range f.appts {
		if a.Status == "scheduled" && a.StartsAt.Before(to) && from.Before(a.EndsAt) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) Create(ctx context.Context, a store.Appointment) (*store.Appointment, error) {
	f.createCalls++
	a.ID = "appt-1"
	f.appts = append(f.appts, a)
	return &a, nil
}

func (f *fakeAppointments) NextForClient(ctx context.Context, phone string, after time.Time) (*store.Appointment, error) {
	for i := range f.appts {
		if f.appts[i].ClientPhone == phone && f.appts[i].StartsAt.After(after) {
			return &f.appts[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAppointments) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeAppointments) Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	f.rescheduled = append(f.rescheduled, id)
	return nil
}

func newTestTool(t *testing.T, st store.AppointmentStore, now time.Time) *SchedulingTool {
	t.Helper()
	tool, err := NewSchedulingTool(st, config.SchedulingConfig{
		Timezone:     "America/Sao_Paulo",
		DayStartHour: 8,
		DayEndHour:   18,
		SlotMinutes:  60,
	})
	if err != nil {
		t.Fatalf("new tool: %v", err)
	}
	tool.now = func() time.Time { return now }
	return tool
}

func execResult(t *testing.T, tool *SchedulingTool, args map[string]interface{}) Result {
	t.Helper()
	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var res Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("result not json: %v\n%s", err, out)
	}
	return res
}

func TestScheduling_CreatePastRejectedWithoutMutation(t *testing.T) {
	st := &fakeAppointments{}
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, saoPaulo(t))
	tool := newTestTool(t, st, now)

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João Silva",
		"telefone_cliente":      "61987654321",
		"data_consulta_reuniao": "09/03/2026 14:00",
		"intencao":              "agendar",
	})
	if res.Sucesso {
		t.Fatal("past-dated create must fail")
	}
	if res.Mensagem != "Não é possível agendar no passado." {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
	if st.createCalls != 0 {
		t.Errorf("calendar must not be touched, got %d create calls", st.createCalls)
	}
}

func TestScheduling_CreateSuccess(t *testing.T) {
	st := &fakeAppointments{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, saoPaulo(t))
	tool := newTestTool(t, st, now)

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "Maria Santos",
		"telefone_cliente":      "61976543210",
		"data_consulta_reuniao": "2026-03-12 14:00:00",
		"intencao":              "agendar",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	if !strings.Contains(res.Mensagem, "Maria Santos") || !strings.Contains(res.Mensagem, "12/03/2026 às 14:00") {
		t.Errorf("unexpected confirmation: %q", res.Mensagem)
	}
	if st.createCalls != 1 {
		t.Errorf("expected one create, got %d", st.createCalls)
	}
	if res.Dados["agendamento_id"] != "appt-1" {
		t.Errorf("missing appointment id in dados: %v", res.Dados)
	}
}

func TestScheduling_CreateConflict(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:       "busy",
		StartsAt: time.Date(2026, 3, 12, 14, 0, 0, 0, loc),
		EndsAt:   time.Date(2026, 3, 12, 15, 0, 0, 0, loc),
		Status:   "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "12/03/2026 14:00",
		"intencao":              "agendar",
	})
	if res.Sucesso {
		t.Fatal("conflicting slot must be rejected")
	}
	if !strings.Contains(res.Mensagem, "ocupado") {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
	if st.createCalls != 0 {
		t.Error("conflict must not create an appointment")
	}
}

func TestScheduling_QueryAvailability(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:       "busy",
		StartsAt: time.Date(2026, 3, 12, 10, 0, 0, 0, loc),
		EndsAt:   time.Date(2026, 3, 12, 11, 0, 0, 0, loc),
		Status:   "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "2026-03-12",
		"intencao":              "consultar",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	slots := res.Dados["horarios"].([]interface{})
	// 8h-18h minus the booked 10h slot.
	if len(slots) != 9 {
		t.Fatalf("expected 9 free slots, got %d", len(slots))
	}
	for _, s := range slots {
		start := s.(map[string]interface{})["inicio"].(string)
		if strings.Contains(start, "T10:00") {
			t.Error("booked slot must be excluded")
		}
	}
	if res.Dados["data_referencia"] != "12/03/2026" {
		t.Errorf("unexpected reference date: %v", res.Dados["data_referencia"])
	}
}

func TestScheduling_QueryAvailabilityAfternoonFilter(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "2026-03-12",
		"intencao":              "consultar",
		"informacao_extra":      "período da tarde",
	})
	slots := res.Dados["horarios"].([]interface{})
	// 12h through 17h starts.
	if len(slots) != 6 {
		t.Fatalf("expected 6 afternoon slots, got %d", len(slots))
	}
	for _, s := range slots {
		start := s.(map[string]interface{})["inicio"].(string)
		var parsed time.Time
		var err error
		if parsed, err = time.Parse(time.RFC3339, start); err != nil {
			t.Fatalf("bad slot time %q: %v", start, err)
		}
		if parsed.Hour() < 12 {
			t.Errorf("morning slot leaked into afternoon filter: %s", start)
		}
	}
}

func TestScheduling_QueryPastDay(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "01/03/2026",
		"intencao":              "consultar",
	})
	if res.Sucesso {
		t.Fatal("past day must be rejected")
	}
	if res.Mensagem != "Não é possível consultar horários no passado" {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
}

func TestScheduling_CancelFindsByPhone(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:          "appt-9",
		ClientPhone: "61987654321",
		ClientName:  "João Silva",
		StartsAt:    time.Date(2026, 3, 12, 14, 0, 0, 0, loc),
		EndsAt:      time.Date(2026, 3, 12, 15, 0, 0, 0, loc),
		Status:      "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João Silva",
		"telefone_cliente":      "61987654321",
		"data_consulta_reuniao": "12/03/2026 14:00",
		"intencao":              "cancelar",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	if len(st.cancelled) != 1 || st.cancelled[0] != "appt-9" {
		t.Errorf("unexpected cancellations: %v", st.cancelled)
	}
}

func TestScheduling_CancelWithoutDateUsesNextBooking(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:          "appt-3",
		ClientPhone: "61987654321",
		ClientName:  "João Silva",
		StartsAt:    time.Date(2026, 3, 12, 14, 0, 0, 0, loc),
		EndsAt:      time.Date(2026, 3, 12, 15, 0, 0, 0, loc),
		Status:      "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	// "cancela minha visita" carries no usable date; the client's next
	// upcoming booking is the one meant.
	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João Silva",
		"telefone_cliente":      "61987654321",
		"data_consulta_reuniao": "minha visita",
		"intencao":              "cancelar",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	if len(st.cancelled) != 1 || st.cancelled[0] != "appt-3" {
		t.Errorf("unexpected cancellations: %v", st.cancelled)
	}
}

func TestScheduling_UpdateWithoutDateUsesNextBooking(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:          "appt-7",
		ClientPhone: "61987654321",
		ClientName:  "João Silva",
		StartsAt:    time.Date(2026, 3, 12, 14, 0, 0, 0, loc),
		EndsAt:      time.Date(2026, 3, 12, 15, 0, 0, 0, loc),
		Status:      "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João Silva",
		"telefone_cliente":      "61987654321",
		"data_consulta_reuniao": "",
		"intencao":              "atualizar",
		"informacao_extra":      "nova_data:13/03/2026 10:00",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	if len(st.rescheduled) != 1 || st.rescheduled[0] != "appt-7" {
		t.Errorf("unexpected reschedules: %v", st.rescheduled)
	}
}

func TestScheduling_CancelNotFound(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "Desconhecido",
		"telefone_cliente":      "61900000000",
		"data_consulta_reuniao": "12/03/2026 14:00",
		"intencao":              "cancelar",
	})
	if res.Sucesso {
		t.Fatal("expected not-found failure")
	}
	if !strings.Contains(res.Mensagem, "Não foi encontrado agendamento") {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
}

func TestScheduling_UpdateRequiresNewDate(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "12/03/2026 14:00",
		"intencao":              "atualizar",
	})
	if res.Sucesso {
		t.Fatal("update without nova_data must fail")
	}
	if !strings.Contains(res.Mensagem, "nova_data:") {
		t.Errorf("message should instruct nova_data usage: %q", res.Mensagem)
	}
}

func TestScheduling_UpdateReschedules(t *testing.T) {
	loc := saoPaulo(t)
	st := &fakeAppointments{appts: []store.Appointment{{
		ID:          "appt-5",
		ClientPhone: "61987654321",
		ClientName:  "João Silva",
		StartsAt:    time.Date(2026, 3, 12, 14, 0, 0, 0, loc),
		EndsAt:      time.Date(2026, 3, 12, 15, 0, 0, 0, loc),
		Status:      "scheduled",
	}}}
	tool := newTestTool(t, st, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João Silva",
		"telefone_cliente":      "61987654321",
		"data_consulta_reuniao": "12/03/2026 14:00",
		"intencao":              "atualizar",
		"informacao_extra":      "nova_data:13/03/2026 10:00",
	})
	if !res.Sucesso {
		t.Fatalf("expected success, got: %q", res.Mensagem)
	}
	if len(st.rescheduled) != 1 || st.rescheduled[0] != "appt-5" {
		t.Errorf("unexpected reschedules: %v", st.rescheduled)
	}
	if !strings.Contains(res.Mensagem, "13/03/2026 às 10:00") {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
}

func TestScheduling_InvalidIntent(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "12/03/2026",
		"intencao":              "voar",
	})
	if res.Sucesso {
		t.Fatal("unknown intent must fail")
	}
	if !strings.Contains(res.Mensagem, "Intenção inválida") {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
}

func TestScheduling_InvalidDate(t *testing.T) {
	loc := saoPaulo(t)
	tool := newTestTool(t, &fakeAppointments{}, time.Date(2026, 3, 10, 9, 0, 0, 0, loc))

	res := execResult(t, tool, map[string]interface{}{
		"nome_cliente":          "João",
		"telefone_cliente":      "61911112222",
		"data_consulta_reuniao": "amanhã de tarde",
		"intencao":              "agendar",
	})
	if res.Sucesso {
		t.Fatal("unparseable date must fail")
	}
	if !strings.Contains(res.Mensagem, "Formato de data inválido") && !strings.Contains(res.Mensagem, "formato de data inválido") {
		t.Errorf("unexpected message: %q", res.Mensagem)
	}
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

package skill

import (
	"fmt"
	"strings"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/executor"
)

// RenderSnapshot renders the appointment snapshot as a numbered list, one
// line per item, used both in user-facing messages and to ground the
// action parser.
func RenderSnapshot(items []domain.Appointment) string {
	var b strings.Builder
	for i, a := range items {
		writeAppointmentLine(&b, i+1, a)
	}
	return b.String()
}

// renderSubset renders the given 1-based indices of the snapshot, keeping
// their original numbering.
func renderSubset(items []domain.Appointment, indices []int) string {
	var b strings.Builder
	for _, idx := range indices {
		if idx < 1 || idx > len(items) {
			continue
		}
		writeAppointmentLine(&b, idx, items[idx-1])
	}
	return b.String()
}

func writeAppointmentLine(b *strings.Builder, position int, a domain.Appointment) {
	fmt.Fprintf(b, "%d. %s às %s — %s, %s (%s)\n",
		position,
		a.ScheduledAt.Format("02/01/2006"),
		a.ScheduledAt.Format("15:04"),
		a.Specialty.Name,
		a.Provider.Name,
		a.Location.Name,
	)
}

func msgAskIdentity() string {
	return "Para localizar suas consultas, preciso do seu CPF (11 dígitos). Pode me informar?"
}

func msgAskBirthDate() string {
	return "Obrigado! Agora preciso da sua data de nascimento (por exemplo, 15/12/1985)."
}

func msgRetryField(field string) string {
	switch field {
	case domain.FieldIdentity:
		return "Não consegui identificar um CPF válido na sua mensagem. Pode me informar os 11 dígitos do seu CPF?"
	case domain.FieldBirthDate:
		return "Não consegui identificar a data de nascimento. Pode me informar no formato dia/mês/ano, como 15/12/1985?"
	}
	return "Não consegui entender. Pode repetir?"
}

func msgRetriesExhausted(field string) string {
	switch field {
	case domain.FieldIdentity:
		return "Não consegui validar o seu CPF após algumas tentativas. Por favor, entre em contato com a central de atendimento para continuar."
	case domain.FieldBirthDate:
		return "Não consegui validar a sua data de nascimento após algumas tentativas. Por favor, entre em contato com a central de atendimento para continuar."
	}
	return "Não consegui validar os seus dados. Por favor, entre em contato com a central de atendimento."
}

func msgUpstreamFailure() string {
	return "Desculpe, não consegui consultar a agenda agora. Tente novamente em alguns minutos."
}

func msgInternalFailure() string {
	return "Desculpe, algo deu errado por aqui. Vamos recomeçar: me envie novamente o que você precisa."
}

func msgNoAppointments(patientName string) string {
	if patientName != "" {
		return fmt.Sprintf("%s, não encontrei consultas agendadas no seu nome. Se precisar agendar, fale com a central de atendimento.", firstName(patientName))
	}
	return "Não encontrei consultas agendadas no seu nome. Se precisar agendar, fale com a central de atendimento."
}

// msgListing greets, lists the snapshot, and tailors the call-to-action to
// the detected initial intent.
func msgListing(patientName string, items []domain.Appointment, intent InitialIntent) string {
	var b strings.Builder
	if patientName != "" {
		fmt.Fprintf(&b, "Olá, %s! ", firstName(patientName))
	}
	if len(items) == 1 {
		b.WriteString("Encontrei 1 consulta agendada:\n\n")
	} else {
		fmt.Fprintf(&b, "Encontrei %d consultas agendadas:\n\n", len(items))
	}
	b.WriteString(RenderSnapshot(items))
	b.WriteString("\n")

	switch intent.Intent {
	case domain.ActionCancel:
		if intent.Target == "all" {
			b.WriteString("Você quer cancelar todas? Me diga quais consultas cancelar, pelo número.")
		} else {
			b.WriteString("Qual delas você quer cancelar? Pode responder pelo número.")
		}
	case domain.ActionConfirm:
		if intent.Target == "all" {
			b.WriteString("Você quer confirmar presença em todas? Me diga quais, pelo número.")
		} else {
			b.WriteString("Em qual delas você quer confirmar presença? Pode responder pelo número.")
		}
	default:
		b.WriteString("Posso cancelar ou confirmar presença. Me diga o que deseja fazer, por exemplo: \"cancelar a 1\" ou \"confirmar a 2\".")
	}
	return b.String()
}

func msgActionHelp(items []domain.Appointment) string {
	var b strings.Builder
	b.WriteString("Não entendi o que você quer fazer. Suas consultas:\n\n")
	b.WriteString(RenderSnapshot(items))
	b.WriteString("\nVocê pode dizer, por exemplo: \"cancela a 1\" ou \"confirma a 2 e cancela a 3\".")
	return b.String()
}

func actionVerb(kind domain.ActionKind, plural bool) string {
	switch kind {
	case domain.ActionCancel:
		if plural {
			return "cancelar estas consultas"
		}
		return "cancelar esta consulta"
	case domain.ActionConfirm:
		if plural {
			return "confirmar presença nestas consultas"
		}
		return "confirmar presença nesta consulta"
	}
	return "alterar"
}

func actionLabel(kind domain.ActionKind) string {
	switch kind {
	case domain.ActionCancel:
		return "Cancelar"
	case domain.ActionConfirm:
		return "Confirmar presença"
	}
	return string(kind)
}

// msgConfirmSingle builds the confirmation prompt for one action group.
func msgConfirmSingle(items []domain.Appointment, action domain.PendingAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você deseja %s?\n\n", actionVerb(action.Action, len(action.Indices) > 1))
	b.WriteString(renderSubset(items, action.Indices))
	b.WriteString("\nResponda sim ou não.")
	return b.String()
}

// msgConfirmMultiple builds the composite confirmation prompt, one labeled
// section per action group.
func msgConfirmMultiple(items []domain.Appointment, actions []domain.PendingAction) string {
	var b strings.Builder
	b.WriteString("Só para confirmar, você deseja:\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "\n%s:\n", actionLabel(a.Action))
		b.WriteString(renderSubset(items, a.Indices))
	}
	b.WriteString("\nResponda sim ou não.")
	return b.String()
}

func msgConfirmRetry() string {
	return "Desculpe, não entendi. Você confirma as alterações? Responda sim ou não."
}

func msgDenied() string {
	return "Tudo bem, não alterei nada. Se quiser fazer outra coisa com suas consultas, é só me dizer."
}

// msgExecutionSummary reports the execution outcome, distinguishing partial
// from full success.
func msgExecutionSummary(results []executor.EntryResult) string {
	var cancelled, confirmed, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		switch r.Action {
		case domain.ActionCancel:
			cancelled++
		case domain.ActionConfirm:
			confirmed++
		}
	}

	var parts []string
	if cancelled == 1 {
		parts = append(parts, "1 consulta cancelada")
	} else if cancelled > 1 {
		parts = append(parts, fmt.Sprintf("%d consultas canceladas", cancelled))
	}
	if confirmed == 1 {
		parts = append(parts, "1 presença confirmada")
	} else if confirmed > 1 {
		parts = append(parts, fmt.Sprintf("%d presenças confirmadas", confirmed))
	}

	switch {
	case failed == 0:
		return "Pronto! " + strings.Join(parts, " e ") + ". Se precisar de mais alguma coisa, é só chamar."
	case len(parts) > 0:
		return "Consegui concluir parte do pedido: " + strings.Join(parts, " e ") +
			fmt.Sprintf(". Não consegui processar %d item(ns); tente novamente mais tarde.", failed)
	default:
		return "Desculpe, não consegui processar as alterações agora. Tente novamente mais tarde."
	}
}

func suggestedListingActions() []SuggestedAction {
	return []SuggestedAction{
		{Label: "Cancelar consulta", Value: "cancelar"},
		{Label: "Confirmar presença", Value: "confirmar"},
	}
}

func suggestedYesNo() []SuggestedAction {
	return []SuggestedAction{
		{Label: "Sim", Value: "sim"},
		{Label: "Não", Value: "não"},
	}
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

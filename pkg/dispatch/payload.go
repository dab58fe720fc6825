package dispatch

import (
	"fmt"
	"time"

	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

// Payload is the body sent to a tenant API.
type Payload struct {
	Chamado Chamado `json:"chamado"`
}

// Chamado is the ticket as the tenant API sees it.
type Chamado struct {
	ID              string         `json:"id"`
	EmpresaID       string         `json:"empresa_id"`
	Canal           string         `json:"canal"`
	Status          string         `json:"status"`
	Urgencia        string         `json:"urgencia"`
	ContatoNome     string         `json:"contato_nome"`
	ContatoTelefone string         `json:"contato_telefone"`
	MensagemInicial string         `json:"mensagem_inicial"`
	DadosColetados  map[string]any `json:"dados_coletados"`
	CriadoEm        string         `json:"criado_em"`
}

// NewPayload builds the dispatch body for t.
func NewPayload(t ticket.Ticket) Payload {
	data := t.CollectedData
	if data == nil {
		data = map[string]any{}
	}
	return Payload{Chamado: Chamado{
		ID:              t.ID.String(),
		EmpresaID:       t.TenantID.String(),
		Canal:           string(t.Origin),
		Status:          string(t.Status),
		Urgencia:        string(t.UrgencyLevel),
		ContatoNome:     t.ContactName,
		ContatoTelefone: t.ContactPhone,
		MensagemInicial: t.InitialMessage,
		DadosColetados:  data,
		CriadoEm:        t.CreatedAt.UTC().Format(time.RFC3339),
	}}
}

// externalIDKeys are the fields tenant APIs commonly return their id under.
var externalIDKeys = []string{"id", "ticket_id", "numero"}

// ExternalID returns the tenant's id for the ticket from a response body, or
// "" when none of the known keys hold a usable value.
func ExternalID(body map[string]any) string {
	for _, k := range externalIDKeys {
		switch v := body[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case bool, nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

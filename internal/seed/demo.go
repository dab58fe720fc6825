package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwviptbl/CallCenter/pkg/tenant"
	"github.com/pwviptbl/CallCenter/pkg/ticket"
	"github.com/pwviptbl/CallCenter/pkg/urgency"
)

// RunDemo recreates the demo tenant and fills it with tickets in every
// stage of the pipeline. It is destructive: the existing demo tenant and
// everything it owns is deleted first.
func RunDemo(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	tag, err := pool.Exec(ctx, `DELETE FROM tenants WHERE slug = $1`, demoSlug)
	if err != nil {
		return fmt.Errorf("deleting demo tenant: %w", err)
	}
	if tag.RowsAffected() > 0 {
		logger.Info("seed-demo: dropped existing tenant", "slug", demoSlug)
	}

	if err := Run(ctx, pool, logger); err != nil {
		return err
	}

	tenants := tenant.NewStore(pool)
	tn, err := tenants.GetBySlug(ctx, demoSlug)
	if err != nil {
		return err
	}
	ch, err := tenants.ChannelByInstanceKey(ctx, demoInstanceKey)
	if err != nil {
		return err
	}

	type thread struct {
		name, phone string
		status      ticket.Status
		level       urgency.Level
		keywords    []string
		inbound     []string
		ai          []string
		collected   map[string]any
	}
	threads := []thread{
		{
			name: "Maria Souza", phone: "+5511987650001",
			status: ticket.StatusAICollecting, level: urgency.LevelNormal,
			inbound: []string{"Boa tarde, a lâmpada do corredor do 3º andar queimou"},
			ai:      []string{"Olá Maria! Pode me informar o número do seu apartamento?"},
		},
		{
			name: "Carlos Lima", phone: "+5511987650002",
			status: ticket.StatusAwaitingReview, level: urgency.LevelCritical,
			keywords: []string{"preso", "elevador (parado|travado|preso)"},
			inbound:  []string{"Socorro, estou preso no elevador do bloco B", "elevador parado entre o 5 e o 6"},
		},
		{
			name: "Ana Ribeiro", phone: "+5511987650003",
			status: ticket.StatusInProgress, level: urgency.LevelUrgent,
			keywords: []string{"vazamento"},
			inbound:  []string{"Tem um vazamento grande na garagem"},
		},
		{
			name: "João Pereira", phone: "+5511987650004",
			status: ticket.StatusResolved, level: urgency.LevelNormal,
			inbound: []string{"O portão da garagem não abre com o controle"},
			ai: []string{
				"Olá João! Qual o número do seu apartamento?",
				"Obrigado! Coletei todas as informações necessárias. Um atendente irá dar continuidade ao seu atendimento em breve.",
			},
			collected: map[string]any{"nome_completo": "João Pereira", "descricao_problema": "portão da garagem não abre", "localizacao": "apto 42"},
		},
	}

	tickets := ticket.NewStore(pool)
	for _, th := range threads {
		t, err := tickets.Create(ctx, ticket.NewTicket{
			TenantID:       tn.ID,
			ChannelID:      &ch.ID,
			ContactName:    th.name,
			ContactPhone:   th.phone,
			InitialMessage: th.inbound[0],
			Origin:         ticket.OriginWhatsApp,
		})
		if err != nil {
			return fmt.Errorf("creating demo ticket for %s: %w", th.name, err)
		}

		for i, text := range th.inbound {
			if _, _, err := tickets.AppendMessage(ctx, ticket.NewMessage{
				TicketID:          t.ID,
				Direction:         ticket.DirectionInbound,
				SenderType:        ticket.SenderContact,
				Content:           text,
				ProviderMessageID: fmt.Sprintf("DEMO%s%02d", th.phone[len(th.phone)-4:], i),
			}); err != nil {
				return fmt.Errorf("appending demo message: %w", err)
			}
		}
		for _, text := range th.ai {
			if _, _, err := tickets.AppendMessage(ctx, ticket.NewMessage{
				TicketID:   t.ID,
				Direction:  ticket.DirectionOutbound,
				SenderType: ticket.SenderAI,
				Content:    text,
			}); err != nil {
				return fmt.Errorf("appending demo message: %w", err)
			}
		}

		if _, err := tickets.Transition(ctx, t.ID, ticket.Update{
			Status:          &th.status,
			UrgencyLevel:    &th.level,
			UrgencyKeywords: th.keywords,
			CollectedData:   th.collected,
		}); err != nil {
			return fmt.Errorf("updating demo ticket: %w", err)
		}
		logger.Info("seed-demo: created ticket", "contact", th.name, "status", th.status, "urgency", th.level)
	}

	logger.Info("seed-demo: completed successfully", "tenant", demoSlug, "tickets", len(threads))
	return nil
}

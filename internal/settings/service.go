package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/portalcapacita/api/internal/webhook"
)

const (
	cacheTTL            = 60 * time.Second
	cacheKeyInstitution = "settings:institution"
	cacheKeyPayment     = "settings:payment"
	cacheKeyWebhook     = "settings:webhook"
)

// SettingsRepository abstrai a persistência para os testes com stub.
type SettingsRepository interface {
	GetInstitution(ctx context.Context) (*InstitutionSettings, error)
	SaveInstitution(ctx context.Context, cfg InstitutionSettings, updatedBy uuid.UUID) (*InstitutionSettings, error)
	GetPayment(ctx context.Context) (*PaymentSettings, error)
	SavePayment(ctx context.Context, cfg PaymentSettings, updatedBy uuid.UUID) (*PaymentSettings, error)
	GetWebhook(ctx context.Context) (*WebhookSettings, error)
	SaveWebhook(ctx context.Context, cfg WebhookSettings, updatedBy uuid.UUID) (*WebhookSettings, error)
}

// Service expõe as configurações com cache de leitura em redis. O
// cache é opcional: com client nil tudo vai direto ao banco.
type Service struct {
	repo  SettingsRepository
	cache *redis.Client

	// OnPaymentChange é chamado após salvar credenciais de pagamento,
	// permitindo reconfigurar o gateway em execução.
	OnPaymentChange func(PaymentSettings)
}

func NewService(repo SettingsRepository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache}
}

func getCached[T any](ctx context.Context, s *Service, key string, fetch func(context.Context) (*T, error)) (*T, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var out T
			if json.Unmarshal(data, &out) == nil {
				return &out, nil
			}
		}
	}

	out, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, key, payload, cacheTTL).Err()
		}
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, key).Err()
	}
}

// Institution devolve os dados institucionais. Sem registro, devolve
// zeros para que documentos e páginas públicas ainda renderizem.
func (s *Service) Institution(ctx context.Context) (InstitutionSettings, error) {
	cfg, err := getCached(ctx, s, cacheKeyInstitution, s.repo.GetInstitution)
	if errors.Is(err, ErrNotFound) {
		return InstitutionSettings{}, nil
	}
	if err != nil {
		return InstitutionSettings{}, err
	}
	return *cfg, nil
}

func (s *Service) SaveInstitution(ctx context.Context, cfg InstitutionSettings, updatedBy uuid.UUID) (InstitutionSettings, error) {
	saved, err := s.repo.SaveInstitution(ctx, cfg, updatedBy)
	if err != nil {
		return InstitutionSettings{}, err
	}
	s.invalidate(ctx, cacheKeyInstitution)
	return *saved, nil
}

// Payment devolve as credenciais do gateway. ErrNotFound vira um
// registro vazio: Configured() orienta o chamador.
func (s *Service) Payment(ctx context.Context) (PaymentSettings, error) {
	cfg, err := getCached(ctx, s, cacheKeyPayment, s.repo.GetPayment)
	if errors.Is(err, ErrNotFound) {
		return PaymentSettings{}, nil
	}
	if err != nil {
		return PaymentSettings{}, err
	}
	return *cfg, nil
}

func (s *Service) SavePayment(ctx context.Context, cfg PaymentSettings, updatedBy uuid.UUID) (PaymentSettings, error) {
	saved, err := s.repo.SavePayment(ctx, cfg, updatedBy)
	if err != nil {
		return PaymentSettings{}, err
	}
	s.invalidate(ctx, cacheKeyPayment)
	if s.OnPaymentChange != nil {
		s.OnPaymentChange(*saved)
	}
	return *saved, nil
}

func (s *Service) Webhook(ctx context.Context) (WebhookSettings, error) {
	cfg, err := getCached(ctx, s, cacheKeyWebhook, s.repo.GetWebhook)
	if errors.Is(err, ErrNotFound) {
		return WebhookSettings{}, nil
	}
	if err != nil {
		return WebhookSettings{}, err
	}
	return *cfg, nil
}

func (s *Service) SaveWebhook(ctx context.Context, cfg WebhookSettings, updatedBy uuid.UUID) (WebhookSettings, error) {
	saved, err := s.repo.SaveWebhook(ctx, cfg, updatedBy)
	if err != nil {
		return WebhookSettings{}, err
	}
	s.invalidate(ctx, cacheKeyWebhook)
	return *saved, nil
}

// WebhookConfig implementa webhook.ConfigSource para o dispatcher.
func (s *Service) WebhookConfig(ctx context.Context) (string, []webhook.EventType, error) {
	cfg, err := s.Webhook(ctx)
	if err != nil {
		return "", nil, err
	}
	return cfg.URL, cfg.Events, nil
}

package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gomail "github.com/wneessen/go-mail"
)

// Prometheus-метрики отправки писем.
var mailSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dm_mail_sent_total",
	Help: "Количество отправленных писем по результату (success, error).",
}, []string{"result"})

// Result — результат отправки письма.
// Передаётся вызывающему без интерпретации: решение о повторной
// отправке принимает пользователь.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Sender отправляет письма через SMTP.
type Sender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSender создаёт отправителя писем.
func NewSender(cfg SMTPConfig, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "mail_sender")),
	}
}

// Send отправляет письмо получателю.
// Ошибка отправки не скрывается: возвращается в Result.Error как есть.
func (s *Sender) Send(ctx context.Context, to string, msg *Message) *Result {
	messageID := uuid.New().String()

	m := gomail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return s.fail(messageID, fmt.Errorf("адрес отправителя: %w", err))
	}
	if err := m.To(to); err != nil {
		return s.fail(messageID, fmt.Errorf("адрес получателя: %w", err))
	}

	m.SetMessageIDWithValue(messageID)
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return s.fail(messageID, fmt.Errorf("создание SMTP-клиента: %w", err))
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return s.fail(messageID, fmt.Errorf("отправка письма: %w", err))
	}

	mailSent.WithLabelValues("success").Inc()
	s.logger.Info("письмо отправлено",
		slog.String("to", to),
		slog.String("message_id", messageID),
		slog.String("subject", msg.Subject))

	return &Result{Success: true, MessageID: messageID}
}

// fail формирует Result с ошибкой и логирует её.
func (s *Sender) fail(messageID string, err error) *Result {
	mailSent.WithLabelValues("error").Inc()
	s.logger.Error("ошибка отправки письма",
		slog.String("message_id", messageID),
		slog.String("error", err.Error()))

	return &Result{Success: false, MessageID: messageID, Error: err.Error()}
}

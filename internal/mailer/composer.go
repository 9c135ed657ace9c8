// Пакет mailer — формирование и отправка писем-уведомлений
// о назначении техника на миссию.
// Письмо — HTML с инлайн-стилями (почтовые клиенты не поддерживают
// внешние стили), суммы — во французском формате.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Значения по умолчанию при отсутствии данных.
const (
	defaultDescription = "Aucune description fournie."
	defaultSenderName  = "L'équipe de dispatch"
)

// Человекочитаемые названия типов миссий (французский).
var missionTypeLabels = map[string]string{
	"delivery":  "Livraison",
	"sound":     "Sonorisation",
	"dj":        "DJ",
	"handling":  "Manutention",
	"transport": "Transport",
}

// Assignment — данные для письма о назначении.
type Assignment struct {
	// TechnicianName — имя техника (обращение в письме).
	TechnicianName string
	// MissionTitle — название миссии.
	MissionTitle string
	// MissionType — тип миссии (delivery, sound, dj, handling, transport).
	MissionType string
	// Location — адрес миссии.
	Location string
	// StartAt, EndAt — период миссии.
	StartAt time.Time
	EndAt   time.Time
	// Fee — вознаграждение в евро.
	Fee float64
	// Description — описание миссии (nil — подставляется заглушка).
	Description *string
	// SenderName — имя отправителя (пустая строка — подставляется заглушка).
	SenderName string
}

// Message — готовое к отправке письмо.
type Message struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Composer формирует письма о назначении.
type Composer struct {
	tmpl *template.Template
	// appURL — базовый URL приложения для ссылки в письме.
	appURL string
	// printer — форматирование сумм во французской локали.
	printer *message.Printer
}

// NewComposer создаёт составитель писем.
// appURL — базовый URL приложения (ссылка «Voir la mission»).
func NewComposer(appURL string) (*Composer, error) {
	tmpl, err := template.New("assignment").Parse(assignmentTemplate)
	if err != nil {
		return nil, fmt.Errorf("разбор шаблона письма: %w", err)
	}

	return &Composer{
		tmpl:    tmpl,
		appURL:  strings.TrimRight(appURL, "/"),
		printer: message.NewPrinter(language.French),
	}, nil
}

// FormatFee форматирует сумму во французском формате: «150,00 €».
func (c *Composer) FormatFee(fee float64) string {
	return c.printer.Sprintf("%.2f €", fee)
}

// templateData — данные, передаваемые в HTML-шаблон.
type templateData struct {
	TechnicianName string
	MissionTitle   string
	MissionType    string
	Location       string
	Period         string
	Fee            string
	Description    string
	SenderName     string
	MissionURL     string
}

// Compose формирует письмо о назначении техника на миссию.
func (c *Composer) Compose(a *Assignment) (*Message, error) {
	typeLabel, ok := missionTypeLabels[a.MissionType]
	if !ok {
		typeLabel = a.MissionType
	}

	description := defaultDescription
	if a.Description != nil && strings.TrimSpace(*a.Description) != "" {
		description = *a.Description
	}

	senderName := a.SenderName
	if strings.TrimSpace(senderName) == "" {
		senderName = defaultSenderName
	}

	data := templateData{
		TechnicianName: a.TechnicianName,
		MissionTitle:   a.MissionTitle,
		MissionType:    typeLabel,
		Location:       a.Location,
		Period:         formatPeriod(a.StartAt, a.EndAt),
		Fee:            c.FormatFee(a.Fee),
		Description:    description,
		SenderName:     senderName,
		MissionURL:     c.appURL + "/missions",
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("формирование письма: %w", err)
	}

	return &Message{
		Subject:  fmt.Sprintf("Nouvelle mission : %s", a.MissionTitle),
		HTMLBody: buf.String(),
		TextBody: composeText(data),
	}, nil
}

// formatPeriod форматирует период миссии: «02/01/2006 15:04 — 02/01/2006 18:00».
func formatPeriod(start, end time.Time) string {
	const layout = "02/01/2006 15:04"
	return start.Format(layout) + " – " + end.Format(layout)
}

// composeText формирует plain-text версию письма (multipart alternative).
func composeText(data templateData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bonjour %s,\n\n", data.TechnicianName)
	fmt.Fprintf(&b, "Vous avez été affecté(e) à une nouvelle mission.\n\n")
	fmt.Fprintf(&b, "Mission : %s\n", data.MissionTitle)
	fmt.Fprintf(&b, "Type : %s\n", data.MissionType)
	fmt.Fprintf(&b, "Lieu : %s\n", data.Location)
	fmt.Fprintf(&b, "Période : %s\n", data.Period)
	fmt.Fprintf(&b, "Rémunération : %s\n\n", data.Fee)
	fmt.Fprintf(&b, "%s\n\n", data.Description)
	fmt.Fprintf(&b, "Voir la mission : %s\n\n", data.MissionURL)
	fmt.Fprintf(&b, "Cordialement,\n%s\n", data.SenderName)
	return b.String()
}

// assignmentTemplate — HTML-шаблон письма о назначении.
// Все стили инлайн: внешние таблицы стилей вырезаются почтовыми клиентами.
const assignmentTemplate = `<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background-color:#f4f4f7;font-family:Arial,Helvetica,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f7;padding:24px 0;">
<tr><td align="center">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background-color:#1a2b4a;padding:24px 32px;">
<h1 style="margin:0;color:#ffffff;font-size:20px;">Nouvelle mission</h1>
</td></tr>
<tr><td style="padding:32px;">
<p style="margin:0 0 16px;color:#333333;font-size:15px;">Bonjour {{.TechnicianName}},</p>
<p style="margin:0 0 24px;color:#333333;font-size:15px;">Vous avez été affecté(e) à une nouvelle mission :</p>
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f8f9fb;border-radius:6px;padding:16px;">
<tr><td style="padding:16px;">
<p style="margin:0 0 8px;color:#1a2b4a;font-size:17px;font-weight:bold;">{{.MissionTitle}}</p>
<p style="margin:0 0 4px;color:#555555;font-size:14px;"><strong>Type :</strong> {{.MissionType}}</p>
<p style="margin:0 0 4px;color:#555555;font-size:14px;"><strong>Lieu :</strong> {{.Location}}</p>
<p style="margin:0 0 4px;color:#555555;font-size:14px;"><strong>Période :</strong> {{.Period}}</p>
<p style="margin:0 0 4px;color:#555555;font-size:14px;"><strong>Rémunération :</strong> {{.Fee}}</p>
</td></tr>
</table>
<p style="margin:24px 0;color:#555555;font-size:14px;">{{.Description}}</p>
<table role="presentation" cellpadding="0" cellspacing="0" style="margin:0 auto;">
<tr><td style="background-color:#2f6fed;border-radius:6px;">
<a href="{{.MissionURL}}" style="display:inline-block;padding:12px 28px;color:#ffffff;font-size:15px;text-decoration:none;">Voir la mission</a>
</td></tr>
</table>
<p style="margin:32px 0 0;color:#888888;font-size:13px;">Cordialement,<br>{{.SenderName}}</p>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`

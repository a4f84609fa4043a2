package models

import "time"

// Status is the lifecycle state of a laudo as reported by the backend.
type Status string

const (
	StatusRascunho      Status = "Rascunho"
	StatusProcessamento Status = "Laudo em processamento"
	StatusRealizado     Status = "Laudo realizado"
	StatusAssinado      Status = "Laudo assinado"
	StatusRefeito       Status = "Laudo refeito"
	StatusCancelado     Status = "Cancelado"
	StatusErroPDF       Status = "Erro ao gerar PDF"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusRascunho,
	StatusProcessamento,
	StatusRealizado,
	StatusAssinado,
	StatusRefeito,
	StatusCancelado,
	StatusErroPDF,
}

// Laudo is a medical report tied to an exam.
type Laudo struct {
	ID                string    `json:"_id"`
	Exame             *Exame    `json:"exame,omitempty"`
	Status            Status    `json:"status"`
	MedicoResponsavel string    `json:"medicoResponsavel,omitempty"`
	Conclusao         string    `json:"conclusao"`
	LaudoOriginal     string    `json:"laudoOriginal,omitempty"`
	LaudoAssinado     string    `json:"laudoAssinado,omitempty"`
	LaudoAnterior     string    `json:"laudoAnterior,omitempty"`
	LaudoSubstituto   string    `json:"laudoSubstituto,omitempty"`
	Versao            int       `json:"versao"`
	MotivoRefacao     string    `json:"motivoRefacao,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// IsSigned returns true if a signed artifact has been uploaded.
func (l *Laudo) IsSigned() bool {
	return l != nil && l.LaudoAssinado != ""
}

// IsSuperseded returns true if a newer version replaced this laudo.
func (l *Laudo) IsSuperseded() bool {
	return l != nil && l.LaudoSubstituto != ""
}

// History actions recorded by the backend.
const (
	AcaoCriacao    = "Criacao"
	AcaoAssinatura = "Assinatura"
	AcaoRefacao    = "Refacao"
	AcaoEnvioEmail = "EnvioEmail"
)

// Email delivery outcomes recorded on EnvioEmail history entries.
const (
	EnvioEnviado = "Enviado"
	EnvioFalha   = "Falha"
)

// HistoryEntry is one item of GET /laudos/{id}/historico.
type HistoryEntry struct {
	Acao              string    `json:"acao"`
	Data              time.Time `json:"data"`
	Usuario           string    `json:"usuario,omitempty"`
	Detalhes          string    `json:"detalhes,omitempty"`
	Versao            int       `json:"versao,omitempty"`
	StatusEnvio       string    `json:"statusEnvio,omitempty"`
	DestinatarioEmail string    `json:"destinatarioEmail,omitempty"`
	MensagemErro      string    `json:"mensagemErro,omitempty"`
}

// LaudoPage is the body of GET /laudos.
type LaudoPage struct {
	Laudos       []Laudo `json:"laudos"`
	TotalPaginas int     `json:"totalPaginas"`
	TotalItens   int     `json:"totalItens"`
}

// Historico is the body of GET /laudos/{id}/historico.
type Historico struct {
	Historico []HistoryEntry `json:"historico"`
}

// LaudoResponse wraps single-laudo mutation responses.
type LaudoResponse struct {
	Laudo       Laudo        `json:"laudo"`
	Message     string       `json:"message,omitempty"`
	Notificacao *Notificacao `json:"notificacao,omitempty"`
}

// Notificacao reports the email side effect of an upload.
type Notificacao struct {
	Status       string `json:"status"`
	Destinatario string `json:"destinatario,omitempty"`
}

// EmailResponse is the body of POST /laudos/{id}/enviar-email.
type EmailResponse struct {
	Message      string `json:"message,omitempty"`
	Destinatario string `json:"destinatario,omitempty"`
	Sandbox      bool   `json:"sandbox,omitempty"`
	Laudo        *Laudo `json:"laudo,omitempty"`
}

// Estatisticas is the dashboard summary returned by GET /estatisticas.
type Estatisticas struct {
	TotalLaudos     int            `json:"totalLaudos"`
	TotalExames     int            `json:"totalExames"`
	TotalPacientes  int            `json:"totalPacientes"`
	LaudosPorStatus map[Status]int `json:"laudosPorStatus"`
}

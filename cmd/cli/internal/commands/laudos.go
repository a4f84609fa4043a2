package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
)

// LaudosCmd groups the report commands.
type LaudosCmd struct {
	List     LaudosListCmd     `cmd:"" help:"List laudos"`
	Get      LaudosGetCmd      `cmd:"" help:"Show a laudo and the actions available on it"`
	Create   LaudosCreateCmd   `cmd:"" help:"Create a laudo for an exam"`
	Sign     LaudosSignCmd     `cmd:"" help:"Upload the signed PDF of a laudo"`
	Redo     LaudosRedoCmd     `cmd:"" help:"Replace a laudo with a new version"`
	Email    LaudosEmailCmd    `cmd:"" help:"Send the signed laudo to the patient"`
	History  LaudosHistoryCmd  `cmd:"" help:"Show the history of a laudo"`
	Download LaudosDownloadCmd `cmd:"" help:"Download the PDF of a laudo"`
	Watch    LaudosWatchCmd    `cmd:"" help:"Follow live laudo updates"`
}

// LaudosListCmd lists laudos.
type LaudosListCmd struct {
	Status   string `help:"Status to filter by (rascunho, processamento, realizado, assinado, refeito, cancelado, erro)" default:""`
	Paciente string `help:"Patient ID to filter by" default:""`
	Page     int    `help:"Page number" default:"1"`
	Limit    int    `help:"Laudos per page" default:"20"`
}

func (l *LaudosListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	status, err := parseStatus(l.Status)
	if err != nil {
		return err
	}

	page, err := a.client.ListLaudos(ctx, client.LaudoFilter{
		Status:   status,
		Paciente: l.Paciente,
		Page:     l.Page,
		Limit:    l.Limit,
	})
	if err != nil {
		return describe("list laudos", err)
	}

	statusFilter := "all"
	if status != "" {
		statusFilter = string(status)
	}
	fmt.Printf("Laudos (status: %s, page: %d/%d, total: %d):\n", statusFilter, l.Page, max(page.TotalPaginas, 1), page.TotalItens)

	printLaudos(page.Laudos)

	if l.Page < page.TotalPaginas {
		fmt.Printf("\nUse --page=%d to see next page\n", l.Page+1)
	}
	return nil
}

func printLaudos(items []models.Laudo) {
	if len(items) == 0 {
		fmt.Println("No laudos found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tVERSAO\tEXAME\tCRIADO EM")
	for _, l := range items {
		exame := ""
		if l.Exame != nil {
			exame = l.Exame.TipoExame
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.ID, l.Status, l.Versao, exame, l.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// parseStatus accepts a full status name or a short alias.
func parseStatus(s string) (models.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "rascunho":
		return models.StatusRascunho, nil
	case "processamento":
		return models.StatusProcessamento, nil
	case "realizado":
		return models.StatusRealizado, nil
	case "assinado":
		return models.StatusAssinado, nil
	case "refeito":
		return models.StatusRefeito, nil
	case "cancelado":
		return models.StatusCancelado, nil
	case "erro":
		return models.StatusErroPDF, nil
	}
	for _, st := range models.Statuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// LaudosGetCmd shows one laudo.
type LaudosGetCmd struct {
	ID string `arg:"" help:"Laudo ID"`
}

func (g *LaudosGetCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	l, err := a.client.GetLaudo(ctx, g.ID)
	if err != nil {
		return describe("get laudo", err)
	}
	history, err := a.client.Historico(ctx, g.ID)
	if err != nil {
		return describe("get laudo history", err)
	}

	fmt.Printf("ID:         %s\n", l.ID)
	fmt.Printf("Status:     %s\n", l.Status)
	fmt.Printf("Versao:     %d\n", l.Versao)
	if l.Exame != nil {
		fmt.Printf("Exame:      %s (%s)\n", l.Exame.TipoExame, l.Exame.ID)
	}
	fmt.Printf("Conclusao:  %s\n", l.Conclusao)
	if l.LaudoAnterior != "" {
		fmt.Printf("Anterior:   %s\n", l.LaudoAnterior)
	}
	if l.LaudoSubstituto != "" {
		fmt.Printf("Substituto: %s\n", l.LaudoSubstituto)
	}
	if l.IsSigned() {
		email := "not sent"
		if last, ok := laudo.LastEmailAttempt(history); ok {
			email = fmt.Sprintf("%s to %s at %s", last.StatusEnvio, last.DestinatarioEmail, last.Data.Local().Format("2006-01-02 15:04"))
		}
		fmt.Printf("Email:      %s\n", email)
	}

	actions := laudo.Evaluate(laudo.FactsFor(a.session.User(), l, history))
	fmt.Println()
	fmt.Println("Available actions:")
	printAction("sign", actions.UploadSigned)
	printAction("redo", actions.Redo)
	printAction("email", actions.SendEmail)
	return nil
}

func printAction(name string, allowed bool) {
	mark := "no"
	if allowed {
		mark = "yes"
	}
	fmt.Printf("  %-6s %s\n", name, mark)
}

// LaudosCreateCmd creates a laudo.
type LaudosCreateCmd struct {
	Exame     string `arg:"" help:"Exam ID"`
	Conclusao string `arg:"" help:"Conclusion text (at least 10 characters)"`
}

func (c *LaudosCreateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	resp, err := a.client.CreateLaudo(ctx, c.Exame, c.Conclusao)
	if err != nil {
		return describe("create laudo", err)
	}

	fmt.Printf("Created laudo %s (%s)\n", resp.Laudo.ID, resp.Laudo.Status)
	return nil
}

// LaudosSignCmd uploads a signed PDF.
type LaudosSignCmd struct {
	ID   string `arg:"" help:"Laudo ID"`
	File string `arg:"" help:"Signed PDF" type:"existingfile"`
}

func (s *LaudosSignCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	f, err := os.Open(s.File)
	if err != nil {
		return fmt.Errorf("failed to open signed file: %w", err)
	}
	defer f.Close()

	resp, err := a.client.UploadAssinado(ctx, s.ID, filepath.Base(s.File), f)
	if err != nil {
		return describe("upload signed laudo", err)
	}

	fmt.Printf("Laudo %s is now %q\n", resp.Laudo.ID, resp.Laudo.Status)
	if n := resp.Notificacao; n != nil {
		fmt.Printf("Patient notification: %s %s\n", n.Status, n.Destinatario)
	}
	return nil
}

// LaudosRedoCmd replaces a laudo.
type LaudosRedoCmd struct {
	ID        string `arg:"" help:"Laudo ID"`
	Conclusao string `arg:"" help:"New conclusion text"`
	Motivo    string `help:"Reason for the new version" required:""`
}

func (r *LaudosRedoCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	resp, err := a.client.RefazerLaudo(ctx, r.ID, r.Conclusao, r.Motivo)
	if err != nil {
		return describe("redo laudo", err)
	}

	fmt.Printf("Laudo %s replaced by %s (versao %d)\n", r.ID, resp.Laudo.ID, resp.Laudo.Versao)
	return nil
}

// LaudosEmailCmd sends the signed laudo to the patient.
type LaudosEmailCmd struct {
	ID string `arg:"" help:"Laudo ID"`
}

func (e *LaudosEmailCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	l, err := a.client.GetLaudo(ctx, e.ID)
	if err != nil {
		return describe("get laudo", err)
	}

	resp, err := a.client.EnviarEmail(ctx, l)
	if err != nil {
		return describe("send email", err)
	}

	sandbox := ""
	if resp.Sandbox {
		sandbox = " (sandbox)"
	}
	fmt.Printf("Email sent to %s%s\n", resp.Destinatario, sandbox)
	return nil
}

// LaudosHistoryCmd prints the history of a laudo.
type LaudosHistoryCmd struct {
	ID string `arg:"" help:"Laudo ID"`
}

func (h *LaudosHistoryCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	history, err := a.client.Historico(ctx, h.ID)
	if err != nil {
		return describe("get laudo history", err)
	}

	if len(history) == 0 {
		fmt.Println("No history found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATA\tACAO\tUSUARIO\tDETALHES")
	for _, entry := range history {
		detalhes := entry.Detalhes
		if entry.Acao == models.AcaoEnvioEmail {
			detalhes = strings.TrimSpace(entry.StatusEnvio + " " + entry.DestinatarioEmail + " " + entry.MensagemErro)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Data.Local().Format("2006-01-02 15:04:05"), entry.Acao, entry.Usuario, detalhes)
	}
	w.Flush()
	return nil
}

// LaudosDownloadCmd saves a laudo PDF.
type LaudosDownloadCmd struct {
	ID     string `arg:"" help:"Laudo ID"`
	Signed bool   `help:"Download the signed artifact instead of the original"`
	Output string `short:"o" help:"Output file (default: laudo-<id>.pdf)" type:"path"`
}

func (d *LaudosDownloadCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	data, err := a.client.DownloadPDF(ctx, d.ID, d.Signed)
	if err != nil {
		return describe("download laudo", err)
	}

	out := d.Output
	if out == "" {
		out = "laudo-" + d.ID + ".pdf"
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Saved %s (%d bytes)\n", out, len(data))
	return nil
}

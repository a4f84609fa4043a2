package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/models"
)

// UsuariosCmd groups the user administration commands. The backend only
// accepts them from admins.
type UsuariosCmd struct {
	List   UsuariosListCmd   `cmd:"" help:"List users"`
	Create UsuariosCreateCmd `cmd:"" help:"Create a user"`
	Update UsuariosUpdateCmd `cmd:"" help:"Edit a user"`
	Delete UsuariosDeleteCmd `cmd:"" help:"Remove a user"`
}

type UsuariosListCmd struct {
	Role  string `help:"Role to filter by (tecnico, medico, admin)" default:""`
	Page  int    `help:"Page number" default:"1"`
	Limit int    `help:"Users per page" default:"20"`
}

func (l *UsuariosListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	page, err := a.client.ListUsuarios(ctx, client.PageQuery{Page: l.Page, Limit: l.Limit, Role: models.Role(l.Role)})
	if err != nil {
		return describe("list usuarios", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNOME\tEMAIL\tROLE\tATIVO")
	for _, u := range page.Usuarios {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Nome, u.Email, u.Role, u.Ativo)
	}
	return w.Flush()
}

type UsuariosCreateCmd struct {
	Email string `arg:"" help:"Login email"`
	Nome  string `help:"Full name" required:""`
	Role  string `help:"Role" enum:"tecnico,medico,admin" default:"tecnico"`
	CRM   string `help:"CRM, required for medicos"`
	Senha string `help:"Initial password" env:"LAUDOFY_NOVA_SENHA"`
}

func (c *UsuariosCreateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	senha := c.Senha
	if senha == "" {
		if senha, err = promptPassword("Senha inicial: "); err != nil {
			return err
		}
	}

	u, err := a.client.CreateUsuario(ctx, models.UsuarioInput{
		Nome:  c.Nome,
		Email: c.Email,
		Senha: senha,
		Role:  models.Role(c.Role),
		CRM:   c.CRM,
	})
	if err != nil {
		return describe("create usuario", err)
	}

	fmt.Printf("Usuario %s created (%s, %s)\n", u.Email, u.Role, u.ID)
	return nil
}

// UsuariosUpdateCmd edits a user. Unset flags keep the current value.
type UsuariosUpdateCmd struct {
	ID      string `arg:"" help:"Usuario ID"`
	Nome    string `help:"Full name"`
	Email   string `help:"Login email"`
	Role    string `help:"Role (tecnico, medico, admin)"`
	CRM     string `help:"CRM, required for medicos"`
	Senha   string `help:"New password" env:"LAUDOFY_NOVA_SENHA"`
	Enable  bool   `help:"Enable the account" xor:"ativo"`
	Disable bool   `help:"Disable the account" xor:"ativo"`
}

func (c *UsuariosUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	current, err := a.client.GetUsuario(ctx, c.ID)
	if err != nil {
		return describe("get usuario", err)
	}

	in := models.UsuarioInput{
		Nome:  current.Nome,
		Email: current.Email,
		Role:  current.Role,
		CRM:   current.CRM,
		Senha: c.Senha,
	}
	if c.Enable || c.Disable {
		ativo := c.Enable
		in.Ativo = &ativo
	}
	if c.Nome != "" {
		in.Nome = c.Nome
	}
	if c.Email != "" {
		in.Email = c.Email
	}
	if c.Role != "" {
		in.Role = models.Role(c.Role)
	}
	if c.CRM != "" {
		in.CRM = c.CRM
	}

	u, err := a.client.UpdateUsuario(ctx, c.ID, in)
	if err != nil {
		return describe("update usuario", err)
	}

	fmt.Printf("Usuario %s updated (%s, ativo: %t)\n", u.Email, u.Role, u.Ativo)
	return nil
}

type UsuariosDeleteCmd struct {
	ID string `arg:"" help:"Usuario ID"`
}

func (c *UsuariosDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	if err := a.client.DeleteUsuario(ctx, c.ID); err != nil {
		return describe("delete usuario", err)
	}

	fmt.Printf("Usuario %s removed\n", c.ID)
	return nil
}

// FinanceiroCmd groups the billing commands.
type FinanceiroCmd struct {
	Config    FinanceiroConfigCmd    `cmd:"" help:"Show the billing configuration of a medico"`
	Configure FinanceiroConfigureCmd `cmd:"" help:"Set the billing configuration of a medico"`
	Dashboard FinanceiroDashboardCmd `cmd:"" help:"Show this month's billing summary"`
	Faturas   FinanceiroFaturasCmd   `cmd:"" help:"List statements per medico"`
}

type FinanceiroConfigCmd struct {
	Medico string `arg:"" help:"Medico ID"`
}

func (c *FinanceiroConfigCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	cfg, err := a.client.GetConfiguracaoFinanceira(ctx, c.Medico)
	if err != nil {
		return describe("get configuracao financeira", err)
	}

	printConfiguracao(cfg)
	return nil
}

type FinanceiroConfigureCmd struct {
	Medico   string             `arg:"" help:"Medico ID"`
	Comissao float64            `help:"Percentage of each base value paid to the medico" required:""`
	Valor    map[string]float64 `help:"Base value per exam type, e.g. --valor ECG=150"`
}

func (c *FinanceiroConfigureCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	tipos := make([]string, 0, len(c.Valor))
	for tipo := range c.Valor {
		tipos = append(tipos, tipo)
	}
	slices.Sort(tipos)

	cfg := models.ConfiguracaoFinanceira{Comissao: c.Comissao}
	for _, tipo := range tipos {
		cfg.ValoresPorTipo = append(cfg.ValoresPorTipo, models.ValorPorTipo{TipoExame: tipo, Valor: c.Valor[tipo]})
	}

	saved, err := a.client.ConfigurarFinanceiro(ctx, c.Medico, cfg)
	if err != nil {
		return describe("configure financeiro", err)
	}

	printConfiguracao(saved)
	return nil
}

func printConfiguracao(cfg *models.ConfiguracaoFinanceira) {
	fmt.Printf("Medico:   %s\n", cfg.Medico)
	fmt.Printf("Comissao: %.2f%%\n", cfg.Comissao)
	if len(cfg.ValoresPorTipo) == 0 {
		fmt.Println("No exam values configured.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIPO\tVALOR\tMEDICO")
	for _, v := range cfg.ValoresPorTipo {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", v.TipoExame, v.Valor, v.Valor*cfg.Comissao/100)
	}
	w.Flush()
}

type FinanceiroDashboardCmd struct{}

func (c *FinanceiroDashboardCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	d, err := a.client.DashboardFinanceiro(ctx)
	if err != nil {
		return describe("load financeiro dashboard", err)
	}

	fmt.Printf("Total:   %.2f\n", d.ResumoMes.TotalBase)
	fmt.Printf("Clinica: %.2f\n", d.ResumoMes.TotalClinica)
	fmt.Printf("Medicos: %.2f\n", d.ResumoMes.TotalMedico)

	if len(d.TopMedicos) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MEDICO\tTOTAL")
		for _, m := range d.TopMedicos {
			fmt.Fprintf(w, "%s\t%.2f\n", displayName(m.Nome, m.Medico), m.Total)
		}
		w.Flush()
	}
	return nil
}

type FinanceiroFaturasCmd struct {
	Medico string `help:"Medico ID to filter by"`
	Inicio string `help:"Period start (YYYY-MM-DD), defaults to this month"`
	Fim    string `help:"Period end, exclusive (YYYY-MM-DD)"`
}

func (c *FinanceiroFaturasCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	filter := client.FaturaFilter{Medico: c.Medico}
	if filter.Inicio, err = parseDate(c.Inicio); err != nil {
		return err
	}
	if filter.Fim, err = parseDate(c.Fim); err != nil {
		return err
	}

	faturas, err := a.client.ListFaturas(ctx, filter)
	if err != nil {
		return describe("list faturas", err)
	}

	if len(faturas) == 0 {
		fmt.Println("No faturas found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEDICO\tPERIODO\tVALOR\tSTATUS")
	for _, f := range faturas {
		fmt.Fprintf(w, "%s\t%s a %s\t%.2f\t%s\n",
			displayName(f.Medico.Nome, f.Medico.ID),
			f.PeriodoInicio.Format(models.DateLayout), f.PeriodoFim.Format(models.DateLayout),
			f.ValorTotal, f.Status)
	}
	return w.Flush()
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/models"
)

// PacientesCmd groups the patient registration commands.
type PacientesCmd struct {
	List   PacientesListCmd   `cmd:"" help:"List patients"`
	Create PacientesCreateCmd `cmd:"" help:"Register a patient"`
	Update PacientesUpdateCmd `cmd:"" help:"Edit a patient"`
}

type PacientesListCmd struct {
	Nome  string `help:"Filter by name" default:""`
	Page  int    `help:"Page number" default:"1"`
	Limit int    `help:"Patients per page" default:"20"`
}

func (l *PacientesListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	page, err := a.client.ListPacientes(ctx, client.PageQuery{Page: l.Page, Limit: l.Limit, Search: l.Nome})
	if err != nil {
		return describe("list pacientes", err)
	}

	if len(page.Pacientes) == 0 {
		fmt.Println("No pacientes found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNOME\tCPF\tEMAIL")
	for _, p := range page.Pacientes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Nome, p.CPF, p.Email)
	}
	return w.Flush()
}

// PacienteFlags are shared by create and update.
type PacienteFlags struct {
	Nome           string `help:"Full name"`
	CPF            string `help:"CPF, 11 digits"`
	DataNascimento string `help:"Birth date (YYYY-MM-DD)" name:"nascimento"`
	Telefone       string `help:"Phone number"`
	Email          string `help:"Email that receives signed laudos"`
	Endereco       string `help:"Address"`
}

// apply overlays the flags that were set on in.
func (f PacienteFlags) apply(in models.PacienteInput) models.PacienteInput {
	for _, v := range []struct {
		dst *string
		src string
	}{
		{&in.Nome, f.Nome},
		{&in.CPF, f.CPF},
		{&in.DataNascimento, f.DataNascimento},
		{&in.Telefone, f.Telefone},
		{&in.Email, f.Email},
		{&in.Endereco, f.Endereco},
	} {
		if v.src != "" {
			*v.dst = v.src
		}
	}
	return in
}

type PacientesCreateCmd struct {
	Dados PacienteFlags `embed:""`
}

func (c *PacientesCreateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	p, err := a.client.CreatePaciente(ctx, c.Dados.apply(models.PacienteInput{}))
	if err != nil {
		return describe("register paciente", err)
	}

	fmt.Printf("Paciente %s registered (%s)\n", p.Nome, p.ID)
	return nil
}

// PacientesUpdateCmd edits a patient. Unset flags keep the current value.
type PacientesUpdateCmd struct {
	ID    string        `arg:"" help:"Paciente ID"`
	Dados PacienteFlags `embed:""`
}

func (c *PacientesUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	current, err := a.client.GetPaciente(ctx, c.ID)
	if err != nil {
		return describe("get paciente", err)
	}

	in := models.PacienteInput{
		Nome:     current.Nome,
		CPF:      current.CPF,
		Telefone: current.Telefone,
		Email:    current.Email,
		Endereco: current.Endereco,
	}
	if !current.DataNascimento.IsZero() {
		in.DataNascimento = current.DataNascimento.Format(models.DateLayout)
	}

	p, err := a.client.UpdatePaciente(ctx, c.ID, c.Dados.apply(in))
	if err != nil {
		return describe("update paciente", err)
	}

	fmt.Printf("Paciente %s updated\n", p.ID)
	return nil
}

// ExamesCmd groups the exam intake commands.
type ExamesCmd struct {
	List   ExamesListCmd   `cmd:"" help:"List exams"`
	Create ExamesCreateCmd `cmd:"" help:"Register an exam for a patient"`
}

type ExamesListCmd struct {
	Page  int `help:"Page number" default:"1"`
	Limit int `help:"Exams per page" default:"20"`
}

func (l *ExamesListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	page, err := a.client.ListExames(ctx, client.PageQuery{Page: l.Page, Limit: l.Limit})
	if err != nil {
		return describe("list exames", err)
	}

	if len(page.Exames) == 0 {
		fmt.Println("No exames found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPACIENTE\tTIPO\tSTATUS")
	for _, e := range page.Exames {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Paciente, e.TipoExame, e.Status)
	}
	return w.Flush()
}

type ExamesCreateCmd struct {
	Paciente string  `arg:"" help:"Paciente ID"`
	Tipo     string  `help:"Exam type" enum:"ECG,EEG,Holter,Outro" default:"ECG"`
	Sintomas string  `help:"Symptoms reported by the patient" required:""`
	Altura   float64 `help:"Height in meters"`
	Peso     float64 `help:"Weight in kilograms"`
}

func (c *ExamesCreateCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	e, err := a.client.CreateExame(ctx, models.ExameInput{
		Paciente:  c.Paciente,
		TipoExame: c.Tipo,
		Sintomas:  c.Sintomas,
		Altura:    c.Altura,
		Peso:      c.Peso,
	})
	if err != nil {
		return describe("register exame", err)
	}

	fmt.Printf("Exame %s registered (%s)\n", e.ID, e.TipoExame)
	return nil
}

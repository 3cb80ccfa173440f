package course

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Course representa um curso ofertado no portal.
type Course struct {
	ID           uuid.UUID       `json:"id"`
	Titulo       string          `json:"titulo"`
	Slug         string          `json:"slug"`
	AreaID       *uuid.UUID      `json:"area_id,omitempty"`
	Descricao    *string         `json:"descricao,omitempty"`
	DurationDays int             `json:"duration_days"`
	Hours        int             `json:"hours"`
	Modules      json.RawMessage `json:"modules,omitempty"`
	ImageURL     *string         `json:"image_url,omitempty"`
	Ativo        bool            `json:"ativo"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// Module é um módulo do plano de estudos do curso.
type Module struct {
	Titulo  string   `json:"titulo"`
	Hours   int      `json:"hours"`
	Topicos []string `json:"topicos,omitempty"`
}

// fallbackModules é usado quando o JSON de módulos do curso está
// corrompido: o documento sempre é gerado, mesmo com dados ruins.
var fallbackModules = []Module{
	{Titulo: "Fundamentos", Hours: 20, Topicos: []string{"Introdução", "Conceitos básicos"}},
	{Titulo: "Desenvolvimento", Hours: 40, Topicos: []string{"Prática orientada", "Estudos de caso"}},
	{Titulo: "Avaliação e encerramento", Hours: 20, Topicos: []string{"Revisão", "Avaliação final"}},
}

// ParseModules decodifica o JSON de módulos; conteúdo vazio ou inválido
// cai na lista padrão em vez de falhar a renderização.
func (c Course) ParseModules() []Module {
	if len(c.Modules) == 0 {
		return fallbackModules
	}
	var modules []Module
	if err := json.Unmarshal(c.Modules, &modules); err != nil || len(modules) == 0 {
		return fallbackModules
	}
	return modules
}

// Area é a taxonomia simples de cursos.
type Area struct {
	ID        uuid.UUID `json:"id"`
	Nome      string    `json:"nome"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganType descreve o tipo de órgão do aluno e o multiplicador de
// carga horária aplicado na pré-matrícula.
type OrganType struct {
	ID              uuid.UUID `json:"id"`
	Nome            string    `json:"nome"`
	HoursMultiplier float64   `json:"hours_multiplier"`
	CreatedAt       time.Time `json:"created_at"`
}

// CustomHours aplica o multiplicador do órgão sobre a carga do curso.
func (o OrganType) CustomHours(courseHours int) int {
	return int(float64(courseHours) * o.HoursMultiplier)
}

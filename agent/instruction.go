package agent

import (
	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/internal/util"
)

// PromptData is the view of a prospect the Writer prompt is rendered from.
type PromptData struct {
	Company      core.Company
	Pains        []string
	Facts        []core.Fact
	Contact      core.Contact
	Score        float64
	DraftVersion int
}

// Provider supplies prompt text at runtime.
type Provider interface {
	Instruction(ac *core.AgentContext, data PromptData) (string, error)
}

// Func adapts an ordinary function to Provider.
type Func func(ac *core.AgentContext, data PromptData) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ac *core.AgentContext, data PromptData) (string, error) {
	return f(ac, data)
}

// Instruction is either a text/template rendered against PromptData or a
// dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from template text.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ac *core.AgentContext, data PromptData) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by template text.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the prompt, invoking the provider or rendering the
// template.
func (i Instruction) Resolve(ac *core.AgentContext, data PromptData) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ac, data)
	}
	return util.RenderTemplate(i.text, data)
}

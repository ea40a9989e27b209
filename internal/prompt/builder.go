package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type TemplateName string

const (
	TemplateAnalysis   TemplateName = "analysis.tmpl"
	TemplateGeneration TemplateName = "generation.tmpl"
)

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*template.Template
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*template.Template),
	}
}

func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

func (pb *PromptBuilder) Render(name TemplateName, data any) (string, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func (pb *PromptBuilder) getTemplate(name TemplateName) (*template.Template, error) {
	pb.mu.RLock()
	if tmpl, ok := pb.templates[name]; ok {
		pb.mu.RUnlock()
		return tmpl, nil
	}
	pb.mu.RUnlock()

	filename := filepath.ToSlash(filepath.Join("templates", string(name)))
	content, err := templateFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	tmpl, err := template.New(string(name)).Funcs(templateFuncs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.templates[name] = tmpl

	return tmpl, nil
}

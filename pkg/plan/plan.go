package plan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DestinationPostgres = "postgres"
	DestinationYNAB     = "ynab"
)

type YNABConfig struct {
	BudgetID string `yaml:"budget_id"`
	TokenEnv string `yaml:"token_env"`
	// Accounts maps a statement account id to a YNAB account id.
	Accounts map[string]string `yaml:"accounts"`
}

type Plan struct {
	CompanyID   string      `yaml:"company_id"`
	Destination string      `yaml:"destination"`
	YNAB        YNABConfig  `yaml:"ynab"`
	Statements  []Statement `yaml:"statements"`
	Invoices    []Invoice   `yaml:"invoices"`

	dir string
}

type Statement struct {
	File string `yaml:"file"`
	// Account overrides the account id found in the file. Itaú exports carry
	// none, so it is required for them.
	Account string `yaml:"account"`
}

type Invoice struct {
	File string `yaml:"file"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if p.Destination == "" {
		p.Destination = DestinationPostgres
	}
	switch p.Destination {
	case DestinationPostgres:
		if p.CompanyID == "" {
			return nil, fmt.Errorf("plan needs a company_id")
		}
	case DestinationYNAB:
		if p.YNAB.BudgetID == "" {
			return nil, fmt.Errorf("ynab destination needs ynab.budget_id")
		}
	default:
		return nil, fmt.Errorf("unknown destination %q", p.Destination)
	}

	if len(p.Statements) == 0 && len(p.Invoices) == 0 {
		return nil, fmt.Errorf("plan has no statements or invoices")
	}
	return &p, nil
}

// Path resolves a plan entry: ~ expands to the home directory and relative
// paths are taken from the plan file's directory.
func (p *Plan) Path(file string) (string, error) {
	if strings.HasPrefix(file, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, file[2:]), nil
	}
	if !filepath.IsAbs(file) && p.dir != "" {
		return filepath.Join(p.dir, file), nil
	}
	return file, nil
}

// Token reads the YNAB token from the environment variable named in the plan.
func (p *Plan) Token(fallback string) string {
	if p.YNAB.TokenEnv != "" {
		if v := os.Getenv(p.YNAB.TokenEnv); v != "" {
			return v
		}
	}
	return fallback
}

func (p *Plan) Print(w io.Writer) {
	switch p.Destination {
	case DestinationYNAB:
		fmt.Fprintf(w, "Destination: YNAB budget %s\n", p.YNAB.BudgetID)
	default:
		fmt.Fprintf(w, "Destination: %s (company %s)\n", p.Destination, p.CompanyID)
	}
	for i, st := range p.Statements {
		fmt.Fprintf(w, "[%d] statement file=%s account=%s\n", i+1, st.File, st.Account)
	}
	for i, inv := range p.Invoices {
		fmt.Fprintf(w, "[%d] invoice file=%s\n", i+1, inv.File)
	}
}

package store

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/finbr/pkg/models"
)

// Seed is a YAML file describing a company's hierarchy and rules.
type Seed struct {
	CompanyID string     `yaml:"company_id"`
	Universal bool       `yaml:"universal"`
	Types     []SeedType `yaml:"types"`
	Rules     []SeedRule `yaml:"rules"`

	rules       []models.ClassificationRule
	types       []models.CommitmentType
	groups      []models.CommitmentGroup
	commitments []models.Commitment
}

type SeedType struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Groups []SeedGroup `yaml:"groups"`
}

type SeedGroup struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Commitments []SeedCommitment `yaml:"commitments"`
}

type SeedCommitment struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedRule struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Contains   string `yaml:"contains"`
	Commitment string `yaml:"commitment"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and flattens a seed document. Rule positions follow the
// order of the file.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if s.CompanyID == "" && !s.Universal {
		return nil, fmt.Errorf("seed needs a company_id or universal: true")
	}
	if err := s.flatten(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) owner() string {
	if s.Universal {
		return ""
	}
	return s.CompanyID
}

func (s *Seed) flatten() error {
	leaves := make(map[string]models.Commitment)
	for _, t := range s.Types {
		s.types = append(s.types, models.CommitmentType{ID: t.ID, Name: t.Name, CompanyID: s.owner(), Universal: s.Universal})
		for _, g := range t.Groups {
			s.groups = append(s.groups, models.CommitmentGroup{ID: g.ID, Name: g.Name, TypeID: t.ID, CompanyID: s.owner(), Universal: s.Universal})
			for _, c := range g.Commitments {
				leaf := models.Commitment{ID: c.ID, Name: c.Name, GroupID: g.ID, TypeID: t.ID, CompanyID: s.owner(), Universal: s.Universal}
				s.commitments = append(s.commitments, leaf)
				leaves[c.ID] = leaf
			}
		}
	}

	if len(s.Rules) > 0 && s.CompanyID == "" {
		return fmt.Errorf("rules need a company_id")
	}
	for i, r := range s.Rules {
		leaf, ok := leaves[r.Commitment]
		if !ok {
			return fmt.Errorf("rule %q points at unknown commitment %q", r.ID, r.Commitment)
		}
		s.rules = append(s.rules, models.ClassificationRule{
			ID:        r.ID,
			CompanyID: s.CompanyID,
			Name:      r.Name,
			Contains:  r.Contains,
			Target:    leaf.Target(),
			Position:  i,
		})
	}
	return nil
}

func (s *Seed) Hierarchy() ([]models.CommitmentType, []models.CommitmentGroup, []models.Commitment) {
	return s.types, s.groups, s.commitments
}

func (s *Seed) ClassificationRules() []models.ClassificationRule {
	return s.rules
}

// SortRules orders rules the way they are evaluated: by position, then by
// creation time.
func SortRules(rules []models.ClassificationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Position != rules[j].Position {
			return rules[i].Position < rules[j].Position
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

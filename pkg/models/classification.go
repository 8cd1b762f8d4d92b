package models

import "time"

// Target is a leaf of the commitment hierarchy.
type Target struct {
	TypeID       string `json:"type_id"`
	GroupID      string `json:"group_id"`
	CommitmentID string `json:"commitment_id"`
}

// ClassificationRule assigns Target to transactions whose description
// contains Contains, ignoring case. Rules are evaluated by Position.
type ClassificationRule struct {
	ID        string    `json:"id" yaml:"id"`
	CompanyID string    `json:"company_id" yaml:"company_id"`
	Name      string    `json:"name" yaml:"name"`
	Contains  string    `json:"contains" yaml:"contains"`
	Target    Target    `json:"target" yaml:"target"`
	Position  int       `json:"position" yaml:"position"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// CommitmentType is the first level of the hierarchy (Tipo).
type CommitmentType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CompanyID string `json:"company_id,omitempty"`
	Universal bool   `json:"universal"`
}

// CommitmentGroup belongs to exactly one type (Grupo).
type CommitmentGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TypeID    string `json:"type_id"`
	CompanyID string `json:"company_id,omitempty"`
	Universal bool   `json:"universal"`
}

// Commitment is the hierarchy leaf (Natureza).
type Commitment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupID   string `json:"group_id"`
	TypeID    string `json:"type_id"`
	CompanyID string `json:"company_id,omitempty"`
	Universal bool   `json:"universal"`
}

func visible(universal bool, owner, companyID string) bool {
	return universal || owner == companyID
}

func (t CommitmentType) VisibleTo(companyID string) bool {
	return visible(t.Universal, t.CompanyID, companyID)
}

func (g CommitmentGroup) VisibleTo(companyID string) bool {
	return visible(g.Universal, g.CompanyID, companyID)
}

func (c Commitment) VisibleTo(companyID string) bool {
	return visible(c.Universal, c.CompanyID, companyID)
}

// Target returns the classification target pointing at this commitment.
func (c Commitment) Target() Target {
	return Target{TypeID: c.TypeID, GroupID: c.GroupID, CommitmentID: c.ID}
}

// Package types defines the core data structures of the workflow dependency engine.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds node, template and instance titles.
const MaxTitleLength = 500

// Status is the lifecycle state of an instance node.
type Status string

// Node status constants
const (
	StatusLocked     Status = "locked" // System-derived: at least one prerequisite is not done
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// IsValid checks if the status value is one of the four node states.
func (s Status) IsValid() bool {
	switch s {
	case StatusLocked, StatusOpen, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// IsUserSettable reports whether a caller may request this status directly.
// LOCKED is derived by the engine and never accepted from a caller.
func (s Status) IsUserSettable() bool {
	return s.IsValid() && s != StatusLocked
}

// ParseStatus normalizes user input ("in-progress", "DONE", ...) into a Status.
func ParseStatus(s string) (Status, error) {
	norm := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !norm.IsValid() {
		return "", fmt.Errorf("invalid status %q (want one of: open, in_progress, done)", s)
	}
	return norm, nil
}

// NodeKind classifies template and instance nodes.
type NodeKind string

// Node kind constants
const (
	KindTask  NodeKind = "task"
	KindNote  NodeKind = "note"
	KindGroup NodeKind = "group" // Grouping node; may take part in edges but carries no actionable work
)

// IsValid checks if the kind value is valid.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindTask, KindNote, KindGroup:
		return true
	}
	return false
}

// Role is the caller's role inside its tenant.
type Role string

// Role constants, lowest privilege first.
const (
	RoleStaff      Role = "staff"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsValid checks if the role is one of the closed set of roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole normalizes user input into a Role.
func ParseRole(s string) (Role, error) {
	norm := Role(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !norm.IsValid() {
		return "", fmt.Errorf("invalid role %q (want one of: staff, manager, admin, super_admin)", s)
	}
	return norm, nil
}

// TenantContext identifies the caller. It is supplied by the session layer
// and trusted as-is; the engine performs no credential verification.
type TenantContext struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

// Validate checks that the context is usable for authorization decisions.
func (tc TenantContext) Validate() error {
	if tc.UserID == "" {
		return fmt.Errorf("tenant context: user id is required")
	}
	if tc.TenantID == "" {
		return fmt.Errorf("tenant context: tenant id is required")
	}
	if !tc.Role.IsValid() {
		return fmt.Errorf("tenant context: invalid role %q", tc.Role)
	}
	return nil
}

// Edge is implemented by both template and instance prerequisite edges.
type Edge interface {
	Endpoints() (dependentID, prerequisiteID string)
}

// Template is a reusable, tenant-owned task graph definition.
type Template struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TemplateNode is one task, note or group of a template.
type TemplateNode struct {
	ID              string   `json:"id"`
	TemplateID      string   `json:"template_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Kind            NodeKind `json:"kind"`
	Order           int      `json:"order"`
	ParentID        *string  `json:"parent_id,omitempty"` // Tree grouping, independent of edges
	DefaultAssignee string   `json:"default_assignee,omitempty"`
}

// TemplateEdge means DependentID cannot be worked until PrerequisiteID is satisfied.
type TemplateEdge struct {
	TemplateID     string `json:"template_id"`
	DependentID    string `json:"dependent_id"`
	PrerequisiteID string `json:"prerequisite_id"`
}

// Endpoints implements Edge.
func (e *TemplateEdge) Endpoints() (string, string) { return e.DependentID, e.PrerequisiteID }

// TemplateGraph is a template with all of its nodes and edges.
type TemplateGraph struct {
	Template *Template       `json:"template"`
	Nodes    []*TemplateNode `json:"nodes"`
	Edges    []*TemplateEdge `json:"edges"`
}

// InstanceStatus is the aggregate status of a live instance.
type InstanceStatus string

// Instance status constants
const (
	InstanceActive    InstanceStatus = "active"
	InstanceCompleted InstanceStatus = "completed" // Every task node is done
)

// IsValid checks if the instance status is valid.
func (s InstanceStatus) IsValid() bool {
	return s == InstanceActive || s == InstanceCompleted
}

// Instance is a live, per-project copy of a template graph.
type Instance struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	TemplateID   *string         `json:"template_id,omitempty"`
	Title        string          `json:"title"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedBy    string          `json:"created_by"`
	Status       InstanceStatus  `json:"status"`
	GraphVersion int64           `json:"graph_version"` // Bumped on every edge insertion
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// InstanceNode is one node of a live instance graph.
type InstanceNode struct {
	ID             string    `json:"id"`
	InstanceID     string    `json:"instance_id"`
	TemplateNodeID *string   `json:"template_node_id,omitempty"` // Nil for ad-hoc nodes
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Kind           NodeKind  `json:"kind"`
	Status         Status    `json:"status"`
	Assignee       string    `json:"assignee,omitempty"`
	ParentID       *string   `json:"parent_id,omitempty"`
	Order          int       `json:"order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks node fields before persisting.
func (n *InstanceNode) Validate() error {
	if err := ValidateTitle(n.Title); err != nil {
		return err
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("invalid node kind: %s", n.Kind)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", n.Status)
	}
	return nil
}

// IsUnassigned reports whether nobody owns the node.
func (n *InstanceNode) IsUnassigned() bool {
	return strings.TrimSpace(n.Assignee) == ""
}

// InstanceEdge is a prerequisite edge between two nodes of the same instance.
type InstanceEdge struct {
	InstanceID     string    `json:"instance_id"`
	DependentID    string    `json:"dependent_id"`
	PrerequisiteID string    `json:"prerequisite_id"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Endpoints implements Edge.
func (e *InstanceEdge) Endpoints() (string, string) { return e.DependentID, e.PrerequisiteID }

// PrerequisiteState is an instance edge joined with the current status of its
// prerequisite node. It is the snapshot the completion cascade decides on.
type PrerequisiteState struct {
	DependentID        string `json:"dependent_id"`
	PrerequisiteID     string `json:"prerequisite_id"`
	PrerequisiteStatus Status `json:"prerequisite_status"`
}

// InstanceGraph is an instance with all of its nodes and edges.
type InstanceGraph struct {
	Instance *Instance       `json:"instance"`
	Nodes    []*InstanceNode `json:"nodes"`
	Edges    []*InstanceEdge `json:"edges"`
}

// InstanceSummary is a list row: the instance plus node counters.
type InstanceSummary struct {
	Instance
	NodeCount   int `json:"node_count"`
	DoneCount   int `json:"done_count"`
	LockedCount int `json:"locked_count"`
}

// InstanceFilter selects a page of instance summaries within one tenant.
type InstanceFilter struct {
	TenantID string
	Status   *InstanceStatus
	Limit    int
	Offset   int
}

// InstancePage is one page of instance summaries.
type InstancePage struct {
	Items      []*InstanceSummary `json:"items"`
	Total      int                `json:"total"`
	NextOffset int                `json:"next_offset,omitempty"` // 0 when there are no more pages
}

// NodeDetailsUpdate carries optional title/description changes.
type NodeDetailsUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u NodeDetailsUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil
}

// AuditAction names an audited operation.
type AuditAction string

// Audit action constants
const (
	AuditInstanceCreated AuditAction = "instance_created"
	AuditInstanceDeleted AuditAction = "instance_deleted"
	AuditNodeAdded       AuditAction = "node_added"
	AuditEdgeAdded       AuditAction = "edge_added"
	AuditStatusChanged   AuditAction = "status_changed"
	AuditDetailsChanged  AuditAction = "details_changed"
	AuditCascade         AuditAction = "cascade"
)

// AuditEntry is one append-only record of an action on an instance.
type AuditEntry struct {
	ID         int64          `json:"id"`
	InstanceID string         `json:"instance_id"`
	TenantID   string         `json:"tenant_id"`
	Actor      string         `json:"actor"`
	Action     AuditAction    `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ValidateTitle enforces the title rules shared by all entities.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(title))
	}
	return nil
}

package types

import (
	"strings"
	"testing"
)

func TestStatusIsValid(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
	}{
		{StatusLocked, true},
		{StatusOpen, true},
		{StatusInProgress, true},
		{StatusDone, true},
		{Status("closed"), false},
		{Status(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.valid {
				t.Errorf("Status(%q).IsValid() = %v, want %v", tt.status, got, tt.valid)
			}
		})
	}
}

func TestStatusIsUserSettable(t *testing.T) {
	if StatusLocked.IsUserSettable() {
		t.Error("locked must not be user settable")
	}
	for _, s := range []Status{StatusOpen, StatusInProgress, StatusDone} {
		if !s.IsUserSettable() {
			t.Errorf("%s should be user settable", s)
		}
	}
	if Status("bogus").IsUserSettable() {
		t.Error("unknown status must not be user settable")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"open", StatusOpen, false},
		{"DONE", StatusDone, false},
		{"in-progress", StatusInProgress, false},
		{" in_progress ", StatusInProgress, false},
		{"locked", StatusLocked, false},
		{"finished", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Super-Admin")
	if err != nil {
		t.Fatalf("ParseRole: %v", err)
	}
	if r != RoleSuperAdmin {
		t.Errorf("got %q, want %q", r, RoleSuperAdmin)
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestTenantContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		tc      TenantContext
		wantErr string
	}{
		{"valid", TenantContext{UserID: "u1", TenantID: "t1", Role: RoleStaff}, ""},
		{"missing user", TenantContext{TenantID: "t1", Role: RoleStaff}, "user id"},
		{"missing tenant", TenantContext{UserID: "u1", Role: RoleStaff}, "tenant id"},
		{"bad role", TenantContext{UserID: "u1", TenantID: "t1", Role: "root"}, "invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInstanceNodeValidate(t *testing.T) {
	n := &InstanceNode{Title: "Write docs", Kind: KindTask, Status: StatusOpen}
	if err := n.Validate(); err != nil {
		t.Fatalf("valid node rejected: %v", err)
	}

	n.Title = "   "
	if err := n.Validate(); err == nil {
		t.Error("expected error for blank title")
	}

	n.Title = strings.Repeat("x", MaxTitleLength+1)
	if err := n.Validate(); err == nil || !strings.Contains(err.Error(), "characters or less") {
		t.Errorf("expected length error, got %v", err)
	}

	n.Title = "ok"
	n.Kind = "epic"
	if err := n.Validate(); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestEdgeEndpoints(t *testing.T) {
	var e Edge = &InstanceEdge{DependentID: "b", PrerequisiteID: "a"}
	dep, pre := e.Endpoints()
	if dep != "b" || pre != "a" {
		t.Errorf("Endpoints() = (%s, %s), want (b, a)", dep, pre)
	}

	e = &TemplateEdge{DependentID: "y", PrerequisiteID: "x"}
	dep, pre = e.Endpoints()
	if dep != "y" || pre != "x" {
		t.Errorf("Endpoints() = (%s, %s), want (y, x)", dep, pre)
	}
}

func TestNodeIsUnassigned(t *testing.T) {
	n := &InstanceNode{}
	if !n.IsUnassigned() {
		t.Error("empty assignee should be unassigned")
	}
	n.Assignee = "alice"
	if n.IsUnassigned() {
		t.Error("assigned node reported unassigned")
	}
}

package core

import "testing"

func TestScopeFor(t *testing.T) {
	cases := []struct {
		name       string
		owner      int64
		role       Role
		includeAll bool
		want       Scope
	}{
		{"employee own rows", 2, RoleEmployee, false, Scope{Owner: 2}},
		{"employee asks for all, silently narrowed", 2, RoleEmployee, true, Scope{Owner: 2}},
		{"admin own rows", 1, RoleAdmin, false, Scope{Owner: 1}},
		{"admin all rows", 1, RoleAdmin, true, Scope{All: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScopeFor(tc.owner, tc.role, tc.includeAll)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestRoleElevated(t *testing.T) {
	if !RoleAdmin.Elevated() {
		t.Fatal("admin should be elevated")
	}
	if RoleEmployee.Elevated() {
		t.Fatal("employee should not be elevated")
	}
	if Role("other").Elevated() {
		t.Fatal("unknown role should not be elevated")
	}
}

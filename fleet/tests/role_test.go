package tests

import (
	"fmt"
	"net/http"
	"testing"

	"crewcert/fleet/services"
)

func TestRolePositionSequencing(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	names := []string{"Master", "Chief Officer", "Second Officer", "Able Seaman"}
	for i, name := range names {
		_, position, err := admin.createRole(name)
		if err != nil {
			t.Fatal(err)
		}
		if position != i+1 {
			t.Fatalf("expected position %d for %v, got %d", i+1, name, position)
		}
	}

	_, _, err := admin.createRole("Master")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate role name should be rejected, got %v", err)
	}

	roles, err := get[[]services.RoleInfo](&admin, "/role/list")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != len(names) {
		t.Fatalf("expected %d roles, got %d", len(names), len(roles))
	}
	for i, role := range roles {
		if role.Name != names[i] {
			t.Fatalf("roles out of order, expected %v at %d, got %v", names[i], i, role.Name)
		}
	}
}

func TestRoleDeleteGuardedByCrewReferences(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}
	roleId, _, err := admin.createRole("Master")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createCrewMember(vesselId, roleId, "Elena", "Marsh", "elena@mail.com"); err != nil {
		t.Fatal(err)
	}

	err = deleteReq(&admin, fmt.Sprintf("/role/%v", roleId))
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("deleting a role with assigned crew should conflict, got %v", err)
	}

	emptyRoleId, _, err := admin.createRole("Cook")
	if err != nil {
		t.Fatal(err)
	}
	if err := deleteReq(&admin, fmt.Sprintf("/role/%v", emptyRoleId)); err != nil {
		t.Fatal(err)
	}
}

func TestCertificateTypeCodeRules(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	typeId, err := admin.createCertificateType("stcw-bst ", "Basic Safety Training", nil)
	if err != nil {
		t.Fatal(err)
	}
	if typeId == "" {
		t.Fatal("expected a type id")
	}

	// Codes are normalized to uppercase before the uniqueness check.
	_, err = admin.createCertificateType("STCW-BST", "Basic Safety Training Again", nil)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate code should be rejected, got %v", err)
	}

	// Underscores are part of the code charset alongside dashes.
	underscoreId, err := admin.createCertificateType("safety_01", "Safety Familiarization", nil)
	if err != nil {
		t.Fatal(err)
	}
	if underscoreId == "" {
		t.Fatal("expected a type id")
	}
	types, err := admin.listCertificateTypes()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, info := range types {
		if info.Code == "SAFETY_01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SAFETY_01 in the listing, got %v", types)
	}

	_, err = admin.createCertificateType("bad code!", "Nope", nil)
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("invalid code characters should be rejected, got %v", err)
	}

	negative := -6
	_, err = admin.createCertificateType("MED-CERT", "Medical Certificate", &negative)
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("negative validity should be rejected, got %v", err)
	}
}

func TestCertificateTypeDeleteGuardedByCertificates(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}
	roleId, _, err := admin.createRole("Master")
	if err != nil {
		t.Fatal(err)
	}
	crewId, err := admin.createCrewMember(vesselId, roleId, "Elena", "Marsh", "elena@mail.com")
	if err != nil {
		t.Fatal(err)
	}
	typeId, err := admin.createCertificateType("STCW-BST", "Basic Safety Training", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createCertificate(crewId, typeId, "BST-001", daysFromNow(-30), daysFromNow(300)); err != nil {
		t.Fatal(err)
	}

	err = deleteReq(&admin, fmt.Sprintf("/certificate-type/%v", typeId))
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("deleting a type with issued certificates should conflict, got %v", err)
	}
}

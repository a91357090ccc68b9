package tests

import (
	"net/http"
	"testing"

	"crewcert/fleet/schema"
)

func TestCrewMemberCrud(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	vesselA, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}
	vesselB, err := admin.createVessel("MV Borealis", "")
	if err != nil {
		t.Fatal(err)
	}
	roleId, _, err := admin.createRole("Master")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createCrewMember(vesselA, roleId, "Elena", "Marsh", "Elena@Mail.com"); err != nil {
		t.Fatal(err)
	}

	// Emails are stored lowercased, so the duplicate check is case blind.
	_, err = admin.createCrewMember(vesselB, roleId, "Other", "Person", "elena@mail.com")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate email should conflict, got %v", err)
	}

	_, err = admin.createCrewMember(vesselA, roleId, "No", "Email", "not-an-email")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("invalid email should be rejected, got %v", err)
	}

	if _, err := admin.createCrewMember(vesselB, roleId, "Tomas", "Reyes", "tomas@mail.com"); err != nil {
		t.Fatal(err)
	}

	all, err := get[[]map[string]interface{}](&admin, "/crew/list")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 crew members, got %d", len(all))
	}

	aurora, err := get[[]map[string]interface{}](&admin, "/crew/list?vessel_id="+vesselA)
	if err != nil {
		t.Fatal(err)
	}
	if len(aurora) != 1 || aurora[0]["first_name"] != "Elena" {
		t.Fatalf("vessel filter returned wrong crew %v", aurora)
	}
}

func TestCrewMemberDeleteCascades(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	if _, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-1", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.admin.createRequest(f.crewId); err != nil {
		t.Fatal(err)
	}

	if err := deleteReq(&f.admin, "/crew/"+f.crewId); err != nil {
		t.Fatal(err)
	}

	var certs, requests int64
	if result := env.db.Model(&schema.Certificate{}).Count(&certs); result.Error != nil {
		t.Fatal(result.Error)
	}
	if result := env.db.Model(&schema.CertificateRequest{}).Count(&requests); result.Error != nil {
		t.Fatal(result.Error)
	}
	if certs != 0 || requests != 0 {
		t.Fatalf("expected certificates and requests to be removed, got %d and %d", certs, requests)
	}
}

func TestCrewMemberCompliance(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	res, err := f.admin.crewCompliance(f.crewId)
	if err != nil {
		t.Fatal(err)
	}
	if res["compliant"] != false {
		t.Fatalf("crew member without certificates should not be compliant, got %v", res)
	}
	if res["compliance_percentage"] != 0.0 {
		t.Fatalf("expected 0%% compliance, got %v", res["compliance_percentage"])
	}

	certId, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-1", daysFromNow(-10), daysFromNow(-1))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.admin.verifyCertificate(certId); err != nil {
		t.Fatal(err)
	}

	// The quick compliance check only asks for a verified certificate, the
	// expiry shows up in readiness and reports instead.
	res, err = f.admin.crewCompliance(f.crewId)
	if err != nil {
		t.Fatal(err)
	}
	if res["compliant"] != true {
		t.Fatalf("verified certificate should satisfy the requirement, got %v", res)
	}

	_, err = f.admin.crewCompliance("00000000-0000-0000-0000-000000000000")
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown crew member should 404, got %v", err)
	}
}

package tests

import (
	"net/http"
	"testing"
)

func TestVesselCrud(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "9074729")
	if err != nil {
		t.Fatal(err)
	}

	_, err = admin.createVessel("MV Duplicate", "9074729")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate imo should be rejected, got %v", err)
	}

	_, err = admin.createVessel("MV Bad Imo", "12345")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("short imo should be rejected, got %v", err)
	}

	_, err = admin.createVessel("", "")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("missing name should be rejected, got %v", err)
	}

	// A vessel without an IMO number is fine, and two of them can coexist.
	if _, err := admin.createVessel("MV Coastal One", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.createVessel("MV Coastal Two", ""); err != nil {
		t.Fatal(err)
	}

	vessels, err := admin.listVessels()
	if err != nil {
		t.Fatal(err)
	}
	if len(vessels) != 3 {
		t.Fatalf("expected 3 vessels, got %d", len(vessels))
	}
	if vessels[0].Name != "MV Aurora" || vessels[0].Imo == nil || *vessels[0].Imo != "9074729" {
		t.Fatalf("unexpected first vessel %v", vessels[0])
	}
	if vessels[1].Imo != nil {
		t.Fatalf("vessel without imo should return null imo, got %v", *vessels[1].Imo)
	}

	if err := deleteReq(&admin, "/vessel/"+vesselId); err != nil {
		t.Fatal(err)
	}

	vessels, err = admin.listVessels()
	if err != nil {
		t.Fatal(err)
	}
	if len(vessels) != 2 {
		t.Fatalf("expected 2 vessels after delete, got %d", len(vessels))
	}
}

func TestVesselEndpointsRequireAuth(t *testing.T) {
	env := setupTestEnv(t)

	anon := env.newClient()
	if _, err := anon.listVessels(); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if _, err := anon.createVessel("MV Sneaky", ""); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestVesselDeleteRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createUser("deckhand", "deckhand@mail.com", "deckhand_password", false); err != nil {
		t.Fatal(err)
	}

	user := env.newClient()
	if err := user.login("deckhand@mail.com", "deckhand_password"); err != nil {
		t.Fatal(err)
	}

	err = deleteReq(&user, "/vessel/"+vesselId)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("non admin delete should be forbidden, got %v", err)
	}

	if err := deleteReq(&admin, "/vessel/"+vesselId); err != nil {
		t.Fatal(err)
	}
}

package tests

import (
	"net/http"
	"testing"
)

type matrixFixture struct {
	admin    client
	vesselId string
	roleIds  []string
	typeIds  []string
}

func setupMatrixFixture(t *testing.T, env testEnv) matrixFixture {
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}

	var roleIds []string
	for _, name := range []string{"Master", "Chief Officer", "Able Seaman"} {
		roleId, _, err := admin.createRole(name)
		if err != nil {
			t.Fatal(err)
		}
		roleIds = append(roleIds, roleId)
	}

	var typeIds []string
	for _, code := range []string{"STCW-BST", "COC-MASTER", "MED-CERT"} {
		typeId, err := admin.createCertificateType(code, code, nil)
		if err != nil {
			t.Fatal(err)
		}
		typeIds = append(typeIds, typeId)
	}

	return matrixFixture{admin: admin, vesselId: vesselId, roleIds: roleIds, typeIds: typeIds}
}

func TestMatrixCellUpsert(t *testing.T) {
	env := setupTestEnv(t)
	f := setupMatrixFixture(t, env)

	if err := f.admin.setMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0], "M"); err != nil {
		t.Fatal(err)
	}
	// Setting the same cell again changes the level instead of duplicating it.
	if err := f.admin.setMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0], "O"); err != nil {
		t.Fatal(err)
	}

	view, err := f.admin.getMatrix(f.vesselId)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(view.Cells))
	}
	if string(view.Cells[0].Level) != "O" {
		t.Fatalf("expected level O after upsert, got %v", view.Cells[0].Level)
	}

	err = f.admin.setMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0], "X")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("invalid requirement level should be rejected, got %v", err)
	}
}

func TestMatrixClearCell(t *testing.T) {
	env := setupTestEnv(t)
	f := setupMatrixFixture(t, env)

	if err := f.admin.setMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0], "M"); err != nil {
		t.Fatal(err)
	}

	if err := f.admin.clearMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0]); err != nil {
		t.Fatal(err)
	}

	err := f.admin.clearMatrixCell(f.vesselId, f.roleIds[0], f.typeIds[0])
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("clearing an empty cell should 404, got %v", err)
	}

	view, err := f.admin.getMatrix(f.vesselId)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Cells) != 0 {
		t.Fatalf("expected empty matrix, got %d cells", len(view.Cells))
	}
}

func TestMatrixCopy(t *testing.T) {
	env := setupTestEnv(t)
	f := setupMatrixFixture(t, env)

	for i := 0; i < 3; i++ {
		if err := f.admin.setMatrixCell(f.vesselId, f.roleIds[i], f.typeIds[i], "M"); err != nil {
			t.Fatal(err)
		}
	}

	destId, err := f.admin.createVessel("MV Borealis", "")
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.admin.copyMatrix(destId, f.vesselId, false)
	if err != nil {
		t.Fatal(err)
	}
	if res["copied"] != 3 || res["skipped"] != 0 {
		t.Fatalf("expected 3 copied and 0 skipped, got %v", res)
	}

	// Copying again is a no-op because every cell already exists.
	res, err = f.admin.copyMatrix(destId, f.vesselId, false)
	if err != nil {
		t.Fatal(err)
	}
	if res["copied"] != 0 || res["skipped"] != 3 {
		t.Fatalf("expected 0 copied and 3 skipped, got %v", res)
	}

	// Existing cells keep their local level unless overwrite is requested.
	if err := f.admin.setMatrixCell(destId, f.roleIds[0], f.typeIds[0], "O"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.admin.copyMatrix(destId, f.vesselId, false); err != nil {
		t.Fatal(err)
	}
	view, err := f.admin.getMatrix(destId)
	if err != nil {
		t.Fatal(err)
	}
	for _, cell := range view.Cells {
		if cell.RoleId.String() == f.roleIds[0] && cell.CertificateTypeId.String() == f.typeIds[0] {
			if string(cell.Level) != "O" {
				t.Fatalf("copy without overwrite should keep local level, got %v", cell.Level)
			}
		}
	}

	res, err = f.admin.copyMatrix(destId, f.vesselId, true)
	if err != nil {
		t.Fatal(err)
	}
	if res["copied"] != 3 {
		t.Fatalf("overwrite copy should rewrite all cells, got %v", res)
	}
	view, err = f.admin.getMatrix(destId)
	if err != nil {
		t.Fatal(err)
	}
	for _, cell := range view.Cells {
		if string(cell.Level) != "M" {
			t.Fatalf("overwrite copy should restore source levels, got %v", cell.Level)
		}
	}

	_, err = f.admin.copyMatrix(f.vesselId, f.vesselId, false)
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("copying a matrix onto itself should be rejected, got %v", err)
	}
}

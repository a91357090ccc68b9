package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"crewcert/fleet/auth"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatrixService manages the per vessel requirement matrix: which certificate
// types each role must hold, at mandatory or optional level.
type MatrixService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *MatrixService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{vessel_id}", func(r chi.Router) {
		r.Get("/", s.GetMatrix)
		r.Post("/cell", s.SetCell)
		r.Delete("/cell", s.ClearCell)
		r.Post("/copy", s.CopyMatrix)
	})

	return r
}

type MatrixCellInfo struct {
	RoleId            uuid.UUID               `json:"role_id"`
	CertificateTypeId uuid.UUID               `json:"certificate_type_id"`
	Level             schema.RequirementLevel `json:"level"`
}

type matrixResponse struct {
	VesselId uuid.UUID        `json:"vessel_id"`
	Cells    []MatrixCellInfo `json:"cells"`
}

func (s *MatrixService) GetMatrix(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkVesselExists(s.db, vesselId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var requirements []schema.MatrixRequirement
	result := s.db.Where("vessel_id = ?", vesselId).Find(&requirements)
	if result.Error != nil {
		slog.Error("sql error listing matrix requirements", "vessel_id", vesselId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting matrix: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	cells := make([]MatrixCellInfo, 0, len(requirements))
	for _, req := range requirements {
		cells = append(cells, MatrixCellInfo{
			RoleId:            req.RoleId,
			CertificateTypeId: req.CertificateTypeId,
			Level:             req.Level,
		})
	}

	utils.WriteJsonResponse(w, matrixResponse{VesselId: vesselId, Cells: cells})
}

type setCellRequest struct {
	RoleId            uuid.UUID               `json:"role_id" validate:"required"`
	CertificateTypeId uuid.UUID               `json:"certificate_type_id" validate:"required"`
	Level             schema.RequirementLevel `json:"level" validate:"required"`
}

// SetCell upserts one (role, certificate type) cell. Posting the same cell
// with a different level updates it in place.
func (s *MatrixService) SetCell(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setCellRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidRequirementLevel(params.Level); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVesselExists(txn, vesselId); err != nil {
			return err
		}
		if err := checkRoleExists(txn, params.RoleId); err != nil {
			return err
		}
		if err := checkCertificateTypeExists(txn, params.CertificateTypeId); err != nil {
			return err
		}

		var existing schema.MatrixRequirement
		result := txn.Limit(1).Find(&existing,
			"vessel_id = ? AND role_id = ? AND certificate_type_id = ?",
			vesselId, params.RoleId, params.CertificateTypeId)
		if result.Error != nil {
			slog.Error("sql error checking for existing matrix cell", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected != 0 {
			result = txn.Model(&schema.MatrixRequirement{Id: existing.Id}).Update("level", params.Level)
			if result.Error != nil {
				slog.Error("sql error updating matrix cell", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		cell := schema.MatrixRequirement{
			Id:                uuid.New(),
			VesselId:          vesselId,
			RoleId:            params.RoleId,
			CertificateTypeId: params.CertificateTypeId,
			Level:             params.Level,
		}
		result = txn.Create(&cell)
		if result.Error != nil {
			slog.Error("sql error creating matrix cell", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error setting matrix cell: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type clearCellRequest struct {
	RoleId            uuid.UUID `json:"role_id" validate:"required"`
	CertificateTypeId uuid.UUID `json:"certificate_type_id" validate:"required"`
}

func (s *MatrixService) ClearCell(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params clearCellRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVesselExists(txn, vesselId); err != nil {
			return err
		}

		result := txn.Where("vessel_id = ? AND role_id = ? AND certificate_type_id = ?",
			vesselId, params.RoleId, params.CertificateTypeId).
			Delete(&schema.MatrixRequirement{})
		if result.Error != nil {
			slog.Error("sql error clearing matrix cell", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("no matrix cell exists for the given role and certificate type"), http.StatusNotFound)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error clearing matrix cell: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type copyMatrixRequest struct {
	SourceVesselId uuid.UUID `json:"source_vessel_id" validate:"required"`
	// When false, cells already present on the destination are left untouched
	// so repeating a copy is a no-op.
	Overwrite bool `json:"overwrite"`
}

type copyMatrixResponse struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

func (s *MatrixService) CopyMatrix(w http.ResponseWriter, r *http.Request) {
	destVesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params copyMatrixRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.SourceVesselId == destVesselId {
		http.Error(w, "source and destination vessels must differ", http.StatusUnprocessableEntity)
		return
	}

	var res copyMatrixResponse

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVesselExists(txn, destVesselId); err != nil {
			return err
		}
		if err := checkVesselExists(txn, params.SourceVesselId); err != nil {
			return err
		}

		var sourceCells []schema.MatrixRequirement
		result := txn.Where("vessel_id = ?", params.SourceVesselId).Find(&sourceCells)
		if result.Error != nil {
			slog.Error("sql error listing source matrix cells", "vessel_id", params.SourceVesselId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		var destCells []schema.MatrixRequirement
		result = txn.Where("vessel_id = ?", destVesselId).Find(&destCells)
		if result.Error != nil {
			slog.Error("sql error listing destination matrix cells", "vessel_id", destVesselId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		type cellKey struct {
			roleId uuid.UUID
			typeId uuid.UUID
		}
		existing := make(map[cellKey]uuid.UUID, len(destCells))
		for _, cell := range destCells {
			existing[cellKey{cell.RoleId, cell.CertificateTypeId}] = cell.Id
		}

		for _, source := range sourceCells {
			key := cellKey{source.RoleId, source.CertificateTypeId}
			if existingId, ok := existing[key]; ok {
				if !params.Overwrite {
					res.Skipped++
					continue
				}
				result := txn.Model(&schema.MatrixRequirement{Id: existingId}).Update("level", source.Level)
				if result.Error != nil {
					slog.Error("sql error overwriting matrix cell", "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
				res.Copied++
				continue
			}

			cell := schema.MatrixRequirement{
				Id:                uuid.New(),
				VesselId:          destVesselId,
				RoleId:            source.RoleId,
				CertificateTypeId: source.CertificateTypeId,
				Level:             source.Level,
			}
			result := txn.Create(&cell)
			if result.Error != nil {
				slog.Error("sql error copying matrix cell", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			res.Copied++
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error copying matrix: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("copied requirement matrix", "source_vessel_id", params.SourceVesselId,
		"dest_vessel_id", destVesselId, "copied", res.Copied, "skipped", res.Skipped)

	utils.WriteJsonResponse(w, res)
}

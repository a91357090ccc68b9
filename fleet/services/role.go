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

type RoleService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *RoleService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateRole)
	r.Get("/list", s.List)

	r.Route("/{role_id}", func(r chi.Router) {
		r.Post("/update", s.UpdateRole)
		r.With(auth.AdminOnly(s.db)).Delete("/", s.DeleteRole)
	})

	return r
}

type roleRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type createRoleResponse struct {
	RoleId   uuid.UUID `json:"role_id"`
	Position int       `json:"position"`
}

func (s *RoleService) CreateRole(w http.ResponseWriter, r *http.Request) {
	var params roleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newRole := schema.Role{Id: uuid.New(), Name: params.Name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}

		var existing schema.Role
		result := txn.Limit(1).Find(&existing, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate role name", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("role with name %v already exists", params.Name), http.StatusConflict)
		}

		// The position is computed inside the insert statement itself so
		// two concurrent creates cannot read the same max and collide.
		result = txn.Exec(
			"INSERT INTO roles (id, name, position) SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM roles",
			newRole.Id, newRole.Name,
		)
		if result.Error != nil {
			slog.Error("sql error creating new role", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.Role{}).Where("id = ?", newRole.Id).Select("position").Scan(&newRole.Position)
		if result.Error != nil {
			slog.Error("sql error reading new role position", "role_id", newRole.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating role: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createRoleResponse{RoleId: newRole.Id, Position: newRole.Position})
}

type RoleInfo struct {
	Id       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

func (s *RoleService) List(w http.ResponseWriter, r *http.Request) {
	var roles []schema.Role
	result := s.db.Order("position").Find(&roles)
	if result.Error != nil {
		slog.Error("sql error listing roles", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing roles: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]RoleInfo, 0, len(roles))
	for _, role := range roles {
		infos = append(infos, RoleInfo{Id: role.Id, Name: role.Name, Position: role.Position})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *RoleService) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleId, err := utils.URLParamUUID(r, "role_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params roleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRoleExists(txn, roleId); err != nil {
			return err
		}
		if err := checkRequestValid(&params); err != nil {
			return err
		}

		var existing schema.Role
		result := txn.Limit(1).Find(&existing, "name = ? AND id != ?", params.Name, roleId)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate role name", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("role with name %v already exists", params.Name), http.StatusConflict)
		}

		result = txn.Model(&schema.Role{Id: roleId}).Update("name", params.Name)
		if result.Error != nil {
			slog.Error("sql error updating role", "role_id", roleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating role: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *RoleService) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleId, err := utils.URLParamUUID(r, "role_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRoleExists(txn, roleId); err != nil {
			return err
		}

		var crewCount int64
		result := txn.Model(&schema.CrewMember{}).Where("role_id = ?", roleId).Count(&crewCount)
		if result.Error != nil {
			slog.Error("sql error counting crew members for role", "role_id", roleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if crewCount != 0 {
			return CodedError(fmt.Errorf("role is assigned to %v crew members and cannot be deleted", crewCount), http.StatusConflict)
		}

		result = txn.Where("role_id = ?", roleId).Delete(&schema.MatrixRequirement{})
		if result.Error != nil {
			slog.Error("sql error deleting role requirements", "role_id", roleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.Role{Id: roleId})
		if result.Error != nil {
			slog.Error("sql error deleting role", "role_id", roleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting role: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

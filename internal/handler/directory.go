package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/repository"
	"rental/internal/service"
)

// DirectoryHandler serves the driver directory and vehicle catalog the
// booking form is built from.
type DirectoryHandler struct {
	users    repository.UserRepository
	vehicles repository.VehicleRepository
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(users repository.UserRepository, vehicles repository.VehicleRepository) *DirectoryHandler {
	return &DirectoryHandler{users: users, vehicles: vehicles}
}

// UserResponse is the HTTP response for a directory entry.
type UserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// VehicleResponse is the HTTP response for a catalog entry.
type VehicleResponse struct {
	ID        string  `json:"id"`
	Model     string  `json:"model"`
	PhotoURL  string  `json:"photo_url,omitempty"`
	RatePerKm float64 `json:"rate_per_km"`
}

// ListDrivers handles GET /v1/drivers
func (h *DirectoryHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.users.ListByRole(c.Request.Context(), domain.RoleDriver)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]UserResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, UserResponse{ID: d.ID, Name: d.Name, Role: string(d.Role)})
	}

	respondJSON(c, http.StatusOK, response)
}

// GetVehicle handles GET /v1/vehicles/:id
func (h *DirectoryHandler) GetVehicle(c *gin.Context) {
	v, err := h.vehicles.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, VehicleResponse{
		ID:        v.ID,
		Model:     v.Model,
		PhotoURL:  v.PhotoURL,
		RatePerKm: service.RoundFee(v.RatePerKm),
	})
}

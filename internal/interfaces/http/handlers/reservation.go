// internal/interfaces/http/handlers/reservation.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/reservation"
)

// ReservationHandler handles stock reservation endpoints
type ReservationHandler struct {
	reservations *reservation.Manager
	config       *config.Config
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations *reservation.Manager, cfg *config.Config) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		config:       cfg,
	}
}

// Reserve handles POST /admin/reservations for manual holds
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req reservation.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	res, err := h.reservations.Reserve(&req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Stock reserved successfully",
		"data":    res,
	})
}

// ListByReference handles GET /reservations/:refType/:refId
func (h *ReservationHandler) ListByReference(c *gin.Context) {
	refType := reservation.ReferenceType(c.Param("refType"))
	if !refType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid reference type",
		})
		return
	}

	refID, ok := parseUintParam(c, "refId")
	if !ok {
		return
	}

	active, err := h.reservations.ActiveByReference(refType, refID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve reservations",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": active,
	})
}

// ReleaseRequest is the payload for a manual release
type ReleaseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Release handles POST /admin/reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.reservations.Release(id, actorFrom(c), req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reservation released successfully",
	})
}

// ExpireSweep handles POST /admin/reservations/expire-sweep. The same
// sweep runs on a timer; this endpoint exists for operational nudges.
func (h *ReservationHandler) ExpireSweep(c *gin.Context) {
	released, err := h.reservations.ExpireSoftReservations(time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Expiry sweep completed",
		"released": released,
	})
}

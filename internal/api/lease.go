package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leasehub-server/internal/models"
)

func (h *Handler) CreateLease(c *gin.Context) {
	var req models.CreateLeaseRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.CreateLease(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListLeases(c *gin.Context) {
	resp, err := h.service.ListLeases(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetLease(c *gin.Context) {
	resp, err := h.service.GetLease(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateLease(c *gin.Context) {
	var req models.UpdateLeaseRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.UpdateLease(c.Request.Context(), c.GetString("userId"), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateLeaseStatus(c *gin.Context) {
	var req models.UpdateLeaseStatusRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.UpdateLeaseStatus(c.Request.Context(), c.GetString("userId"), c.Param("id"), req.Status)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelLease(c *gin.Context) {
	resp, err := h.service.CancelLease(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetAuditTrail(c *gin.Context) {
	resp, err := h.service.GetAuditTrail(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyLease answers 200 whether or not the fingerprint matches; the
// verified field carries the outcome
func (h *Handler) VerifyLease(c *gin.Context) {
	resp, err := h.service.VerifyLease(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

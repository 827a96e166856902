package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leasehub-server/internal/models"
)

// Signature handlers
func (h *Handler) InitiateSignature(c *gin.Context) {
	var req models.InitiateSignatureRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.InitiateSignature(c.Request.Context(), c.GetString("userId"), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CheckSignatureStatus(c *gin.Context) {
	resp, err := h.service.CheckSignatureStatus(c.Request.Context(), c.GetString("userId"), c.Param("operationId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Payment handlers
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req models.InitiatePaymentRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.InitiatePayment(c.Request.Context(), c.GetString("userId"), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req models.ConfirmPaymentRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.service.ConfirmPayment(c.Request.Context(), c.GetString("userId"), c.Param("transactionId"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CheckPaymentStatus(c *gin.Context) {
	resp, err := h.service.CheckPaymentStatus(c.Request.Context(), c.GetString("userId"), c.Param("transactionId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

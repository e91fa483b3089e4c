package api

import (
	"net/http"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRemoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown || kind == apperr.KindTransformFailure {
		_ = c.Error(err)
	}
	c.JSON(statusFor(kind), errorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: apperr.KindValidation})
}

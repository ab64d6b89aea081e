package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/invoice-engine/internal/issuance"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
	"github.com/rezonia/invoice-engine/internal/transmission"
	"github.com/rezonia/invoice-engine/internal/transmission/provider"
)

// Error kinds reported in ErrorResponse.Error
const (
	KindBadRequest      = "bad_request"
	KindValidation      = "validation_error"
	KindNotFound        = "not_found"
	KindUnknownProvider = "unknown_provider"
	KindChainBroken     = "chain_broken"
	KindSignature       = "signature_error"
	KindSigning         = "signing_error"
	KindRejected        = "transmission_rejected"
	KindTransmission    = "transmission_failed"
	KindInternal        = "internal_error"
)

func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Error: KindBadRequest, Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// fail maps engine errors onto HTTP responses. Unclassified errors are
// logged and reported without detail.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		validation model.ValidationErrors
		chainErr   *signature.ChainError
		signErr    *signature.SigningError
		peppolErr  *transmission.PeppolError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   KindValidation,
			Message: "invoice failed validation",
			Details: validation,
		})

	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: KindUnknownProvider, Message: err.Error()})

	case errors.Is(err, issuance.ErrNotFound), errors.Is(err, transmission.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: KindNotFound, Message: err.Error()})

	case errors.As(err, &chainErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   KindChainBroken,
			Message: chainErr.Error(),
			Details: chainErr,
		})

	case errors.Is(err, transmission.ErrRejected):
		c.JSON(http.StatusConflict, ErrorResponse{Error: KindRejected, Message: err.Error()})

	case errors.As(err, &peppolErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   KindTransmission,
			Message: peppolErr.Error(),
			Details: gin.H{"retryable": peppolErr.Retryable, "status": peppolErr.Status},
		})

	case errors.As(err, &signErr):
		s.log.Error().Err(err).Msg("signing failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: KindSigning, Message: signErr.Op + " failed"})

	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: KindInternal, Message: "internal error"})
	}
}

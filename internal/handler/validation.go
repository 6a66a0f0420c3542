package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/internal/validation"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

type validateRequest struct {
	ServiceID      string                 `json:"serviceId" binding:"required"`
	Requester      string                 `json:"requester" binding:"required"`
	Mode           string                 `json:"mode"`
	PreSignedProof string                 `json:"preSignedProof"`
	Descriptor     *validation.Descriptor `json:"descriptor"`
}

func (h *Handler) Validate(ctx *gin.Context) {
	var body validateRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		h.handleError(ctx, err, "bind validate request")
		return
	}
	if body.Mode == "" {
		body.Mode = model.ValidationModeFree
	}
	if body.Mode != model.ValidationModeFree && body.Mode != model.ValidationModeUserPaid {
		h.handleError(ctx, errors.New("mode must be free or user-paid"), "validate mode")
		return
	}

	descriptor := body.Descriptor
	if descriptor == nil {
		built, err := h.descriptorFromService(body.ServiceID)
		if err != nil {
			h.handleError(ctx, err, "resolve service descriptor")
			return
		}
		descriptor = built
	}

	result, err := h.engine.Validate(ctx.Request.Context(), validation.Request{
		ServiceID:       body.ServiceID,
		Descriptor:      *descriptor,
		Mode:            body.Mode,
		Requester:       body.Requester,
		RequesterIP:     ctx.ClientIP(),
		PreSignedHeader: body.PreSignedProof,
	})
	if err != nil {
		h.handleError(ctx, err, "run validation")
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// descriptorFromService derives the candidate descriptor from a registered
// service when the caller does not supply one.
func (h *Handler) descriptorFromService(serviceID string) (*validation.Descriptor, error) {
	svc, err := h.db.GetServiceByID(serviceID)
	if err != nil {
		return nil, err
	}

	desc := &validation.Descriptor{
		BaseURL:        svc.UpstreamURL,
		PaymentOptions: []string{svc.Network},
	}
	for _, path := range svc.Endpoints {
		desc.Endpoints = append(desc.Endpoints, validation.Endpoint{Path: path, Method: http.MethodGet})
	}
	return desc, nil
}

func (h *Handler) GetValidation(ctx *gin.Context) {
	requestID := ctx.Param("id")

	req, err := h.db.GetValidationRequest(requestID)
	if err != nil {
		h.handleError(ctx, err, "get validation request")
		return
	}

	cases, err := h.db.ListTestCaseResults(requestID)
	if err != nil {
		h.handleError(ctx, err, "list test case results")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"request":   req,
		"testCases": cases,
	})
}

func (h *Handler) GetValidatedService(ctx *gin.Context) {
	serviceID := ctx.Param("serviceId")

	vs, err := h.db.GetValidatedService(serviceID)
	if err != nil {
		h.handleError(ctx, err, "get validated service")
		return
	}

	ctx.JSON(http.StatusOK, vs)
}

type voteRequest struct {
	Voter string `json:"voter" binding:"required"`
	Valid bool   `json:"valid"`
}

// Vote records a community verdict on a validated service. A materially
// split tally marks the service disputed.
func (h *Handler) Vote(ctx *gin.Context) {
	serviceID := ctx.Param("serviceId")

	var body voteRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		h.handleError(ctx, err, "bind vote request")
		return
	}

	vs, err := h.db.GetValidatedService(serviceID)
	if err != nil {
		h.handleError(ctx, err, "get validated service")
		return
	}

	if body.Valid {
		vs.ValidVotes++
	} else {
		vs.InvalidVotes++
	}

	if disputed(vs.ValidVotes, vs.InvalidVotes) {
		vs.Status = model.ValidatedStatusDisputed
	}
	vs.LastValidator = body.Voter
	now := time.Now()
	vs.LastValidatedAt = &now

	if err := h.db.UpsertValidatedService(vs); err != nil {
		h.handleError(ctx, err, "upsert validated service")
		return
	}

	ctx.JSON(http.StatusOK, vs)
}

// disputed reports whether the vote tally is split closely enough that
// neither side holds a two-thirds majority.
func disputed(valid, invalid int) bool {
	if valid == 0 || invalid == 0 {
		return false
	}
	total := valid + invalid
	larger := valid
	if invalid > larger {
		larger = invalid
	}
	return larger*3 < total*2
}

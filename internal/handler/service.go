package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/util"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

func (h *Handler) ListService(ctx *gin.Context) {
	var opts model.ServiceListOptions
	if err := ctx.ShouldBindQuery(&opts); err != nil {
		h.handleError(ctx, err, "bind service list options")
		return
	}

	list, err := h.db.ListService(&opts)
	if err != nil {
		h.handleError(ctx, err, "list services")
		return
	}

	ctx.JSON(http.StatusOK, model.ServiceList{
		Metadata: model.ListMeta{Total: uint64(len(list))},
		Items:    list,
	})
}

func (h *Handler) CreateService(ctx *gin.Context) {
	var svc model.Service
	if err := ctx.ShouldBindJSON(&svc); err != nil {
		h.handleError(ctx, err, "bind service")
		return
	}

	cmp, err := util.Compare(svc.PricePerRequest, "0")
	if err != nil || cmp <= 0 {
		h.handleError(ctx, errors.New("pricePerRequest must be a positive integer"), "validate service")
		return
	}
	if svc.Status == "" {
		svc.Status = model.ServiceStatusActive
	}

	if err := h.db.CreateService(&svc); err != nil {
		h.handleError(ctx, err, "create service")
		return
	}

	ctx.JSON(http.StatusCreated, svc)
}

func (h *Handler) ListUsage(ctx *gin.Context) {
	var opts model.UsageRecordListOptions
	if err := ctx.ShouldBindQuery(&opts); err != nil {
		h.handleError(ctx, err, "bind usage list options")
		return
	}
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}

	list, err := h.db.ListUsageRecord(&opts)
	if err != nil {
		h.handleError(ctx, err, "list usage records")
		return
	}

	ctx.JSON(http.StatusOK, model.UsageRecordList{
		Metadata: model.ListMeta{Total: uint64(len(list))},
		Items:    list,
	})
}

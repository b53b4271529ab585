package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fintechlab/transaction-service/internal/model"
	"github.com/fintechlab/transaction-service/internal/repo"
	"github.com/fintechlab/transaction-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.TransactionService, log *zap.SugaredLogger) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	v1 := r.Group("/v1")
	{
		v1.POST("/transactions", createHandler(svc, log))
		v1.GET("/transactions/:externalId", getHandler(svc))
		v1.GET("/transactions", listHandler(svc))
	}
}

type createReq struct {
	AccountExternalIDDebit  string `json:"accountExternalIdDebit" binding:"required"`
	AccountExternalIDCredit string `json:"accountExternalIdCredit" binding:"required"`
	// no binding tag: a zero or missing transferTypeId must surface as a
	// per-field violation from the service, not a generic binding error
	TransferTypeID int    `json:"transferTypeId"`
	Value          string `json:"value" binding:"required"`
}

type transactionResp struct {
	ExternalID   string          `json:"externalId"`
	TransferType int             `json:"transferType"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    string          `json:"createdAt"`
}

func toResp(t *model.Transaction) transactionResp {
	return transactionResp{
		ExternalID:   t.ExternalID,
		TransferType: t.TransferTypeID,
		Status:       t.Status,
		Amount:       t.Amount,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func createHandler(svc *service.TransactionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []service.FieldError{
				{Field: "value", Message: "must be a decimal number"},
			}})
			return
		}
		t, inserted, err := svc.Create(c, service.CreateInput{
			AccountExternalIDDebit:  req.AccountExternalIDDebit,
			AccountExternalIDCredit: req.AccountExternalIDCredit,
			TransferTypeID:          req.TransferTypeID,
			Amount:                  amt,
		})
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Violations})
			return
		case errors.Is(err, repo.ErrLockTimeout), errors.Is(err, repo.ErrLockNotAcquired):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy, retry the request"})
			return
		case errors.Is(err, service.ErrPublishFailed):
			// The row committed; the caller still gets it. The missed
			// notification is re-driven operationally.
			log.Warnw("created without notification", "externalId", t.ExternalID)
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		// a dedup hit returns the original record, not a new resource
		status := http.StatusOK
		if inserted {
			status = http.StatusCreated
		}
		c.JSON(status, toResp(t))
	}
}

func getHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Get(c, c.Param("externalId"))
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Violations})
			return
		case errors.Is(err, repo.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, toResp(t))
	}
}

func listHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		txs, err := svc.List(c, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		out := make([]transactionResp, 0, len(txs))
		for i := range txs {
			out = append(out, toResp(&txs[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

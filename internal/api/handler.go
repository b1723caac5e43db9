package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"loyalty/internal/constants"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/pkg/errors"
)

// LedgerReader is the read side of the reward ledger.
type LedgerReader interface {
	Query(ctx context.Context, status ledger.Status, date string) ([]ledger.Entry, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*ledger.Entry, error)
}

// ReportReader returns the stored JSON body of a daily report.
type ReportReader interface {
	Read(ctx context.Context, date string) ([]byte, error)
}

type Handler struct {
	ledger  LedgerReader
	reports ReportReader
	logger  logger.Logger
}

func NewHandler(ledgerReader LedgerReader, reports ReportReader, log logger.Logger) *Handler {
	return &Handler{
		ledger:  ledgerReader,
		reports: reports,
		logger:  log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/reports/:date", h.GetReport)

		entries := v1.Group("/ledger")
		{
			entries.GET("", h.ListEntries)
			entries.GET("/transactions/:transaction_id", h.GetTransaction)
		}
	}
}

// EntryList is a page of ledger entries.
type EntryList struct {
	Entries []ledger.Entry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

func validationError(message string) error {
	return errors.ErrValidation.WithDetail("message", message)
}

// GetReport godoc
// @Summary      Get a daily rewards report
// @Description  Returns the stored report for one calendar day exactly as the aggregator wrote it
// @Tags         reports
// @Produce      json
// @Param        date  path      string  true  "Day in YYYY-MM-DD"
// @Success      200   {object}  reports.Report
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      503   {object}  errors.ErrorResponse
// @Router       /reports/{date} [get]
func (h *Handler) GetReport(c *gin.Context) {
	date := c.Param("date")
	if _, err := ledger.ParseDate(date); err != nil {
		h.HandleError(c, validationError(err.Error()))
		return
	}

	body, err := h.reports.Read(c.Request.Context(), date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetTransaction godoc
// @Summary      Look up the ledger entry of a transaction
// @Description  An ISSUED entry is returned in preference to any other status
// @Tags         ledger
// @Produce      json
// @Param        transaction_id  path      string  true  "Transaction ID"
// @Success      200             {object}  ledger.Entry
// @Failure      404             {object}  errors.ErrorResponse
// @Failure      503             {object}  errors.ErrorResponse
// @Router       /ledger/transactions/{transaction_id} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	entry, err := h.ledger.GetByTransactionID(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListEntries godoc
// @Summary      List ledger entries
// @Description  Entries with the given status on the given day, oldest first
// @Tags         ledger
// @Produce      json
// @Param        status  query     string  true   "ISSUED or REDEEMED"
// @Param        date    query     string  true   "Day in YYYY-MM-DD"
// @Param        limit   query     int     false  "Page size"
// @Param        offset  query     int     false  "Entries to skip"
// @Success      200     {object}  EntryList
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      503     {object}  errors.ErrorResponse
// @Router       /ledger [get]
func (h *Handler) ListEntries(c *gin.Context) {
	status, err := ledger.ParseStatus(c.Query("status"))
	if err != nil {
		h.HandleError(c, validationError(err.Error()))
		return
	}

	date := c.Query("date")
	if _, err := ledger.ParseDate(date); err != nil {
		h.HandleError(c, validationError(err.Error()))
		return
	}

	limit, offset, err := pagination(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	entries, err := h.ledger.Query(c.Request.Context(), status, date)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page := EntryList{Entries: []ledger.Entry{}, Total: len(entries), Limit: limit, Offset: offset}
	if offset < len(entries) {
		end := offset + limit
		if end > len(entries) {
			end = len(entries)
		}
		page.Entries = entries[offset:end]
	}
	c.JSON(http.StatusOK, page)
}

func pagination(c *gin.Context) (int, int, error) {
	limit := constants.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > constants.MaxLimit {
			return 0, 0, validationError("limit must be between 1 and " + strconv.Itoa(constants.MaxLimit))
		}
		limit = n
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, validationError("offset must be a non-negative integer")
		}
		offset = n
	}

	return limit, offset, nil
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/reconcile"
	"github.com/untibullet/service-review/internal/review"
)

// Коды ошибок для API
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeTracker        = "TRACKER_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeRunInProgress  = "RUN_IN_PROGRESS"
)

// Submitter открытие и повторное открытие ревью
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*review.Outcome, error)
	Resubmit(ctx context.Context, raw []byte) (*review.Outcome, error)
}

// Reconciler один прогон синхронизации
type Reconciler interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

type Handler struct {
	submitter  Submitter
	reconciler Reconciler
	logger     *zap.Logger
}

// New создает новый экземпляр обработчика
func New(submitter Submitter, reconciler Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		submitter:  submitter,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ErrorResponse представляет структуру ошибки API
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newErrorResponse создает стандартный ответ с ошибкой
func newErrorResponse(code, message string) ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	return resp
}

// Health проверка живости
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitReview открывает ревью по запросу на публикацию
func (h *Handler) SubmitReview(c echo.Context) error {
	return h.handleRequest(c, "SubmitReview", h.submitter.Submit)
}

// ResubmitReview повторное ревью уже открытого или отклоненного тикета
func (h *Handler) ResubmitReview(c echo.Context) error {
	return h.handleRequest(c, "ResubmitReview", h.submitter.Resubmit)
}

func (h *Handler) handleRequest(c echo.Context, op string, fn func(context.Context, []byte) (*review.Outcome, error)) error {
	h.logger.Info(op + ": начало обработки запроса")

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error(op+": ошибка чтения тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidRequest, "invalid request body"))
	}

	out, err := fn(c.Request().Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidRequest):
			h.logger.Warn(op+": запрос не прошел валидацию", zap.Error(err))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidRequest, err.Error()))
		case isTrackerError(err):
			h.logger.Error(op+": ошибка Jira", zap.Error(err))
			return c.JSON(http.StatusBadGateway, newErrorResponse(ErrCodeTracker, "issue tracker request failed"))
		default:
			h.logger.Error(op+": ошибка обработки запроса", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to process review request"))
		}
	}

	h.logger.Info(op+": запрос обработан",
		zap.String("ticket_key", out.TicketKey),
		zap.Bool("ticket_created", out.TicketCreated),
		zap.Bool("row_inserted", out.RowInserted),
	)
	return c.JSON(http.StatusAccepted, out)
}

// Reconcile запускает прогон синхронизации и ждет его завершения
func (h *Handler) Reconcile(c echo.Context) error {
	h.logger.Info("Reconcile: запуск синхронизации")

	// Обрыв соединения клиентом не должен прерывать прогон на середине
	report, err := h.reconciler.Run(context.WithoutCancel(c.Request().Context()))
	if err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			h.logger.Warn("Reconcile: прогон уже выполняется")
			return c.JSON(http.StatusConflict, newErrorResponse(ErrCodeRunInProgress, "reconciliation run already in progress"))
		}
		h.logger.Error("Reconcile: прогон прерван", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "reconciliation run failed"))
	}

	h.logger.Info("Reconcile: синхронизация завершена", zap.Int("rows", report.Rows), zap.Int("failed", report.Failed))
	return c.JSON(http.StatusOK, report)
}

func isTrackerError(err error) bool {
	var jerr *jira.Error
	return errors.As(err, &jerr)
}

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api/v1")
	// Reviews
	api.POST("/reviews", h.SubmitReview)
	api.PUT("/reviews", h.ResubmitReview)

	// Reconciliation
	api.POST("/reconcile", h.Reconcile)
}

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-board/board"
	"kanban-board/domain"
	"kanban-board/drag"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Board, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/api/board", getBoard(svc, logger))
	e.GET("/api/tasks/:id", getTask(svc, logger))
	e.POST("/api/tasks", createTask(svc, logger))
	e.PUT("/api/tasks/:id", updateTask(svc, logger))
	e.DELETE("/api/tasks/:id", deleteTask(svc, logger))
	e.POST("/api/tasks/:id/move", moveTask(svc, logger))

	e.POST("/api/drag/start", dragStart(svc, logger))
	e.POST("/api/drag/over", dragOver(svc, logger))
	e.POST("/api/drag/drop", dragDrop(svc, logger))
	e.POST("/api/drag/end", dragEnd(svc))

	e.GET("/api/export", exportBoard(svc, logger))
	e.POST("/api/import", importBoard(svc, logger), GzipRequestMiddleware(importMaxSize))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, limit int64, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, limit))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
}

// writeError maps board errors onto responses. Events on tasks that no
// longer exist are ignored and answered with 204.
func writeError(c echo.Context, svc Board, logger *log.Logger, err error) error {
	var verr *domain.ValidationError
	var perr *domain.ParseError
	switch {
	case errors.As(err, &perr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: perr.Error(), Field: perr.Path})
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, drag.ErrDragActive), errors.Is(err, drag.ErrNotDragging):
		return c.JSON(http.StatusConflict, conflictResponse{Error: err.Error(), Drag: svc.View("").Drag})
	}
	logger.WithError(err).WithFields(log.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save board"})
}

type conflictResponse struct {
	Error string          `json:"error"`
	Drag  board.DragState `json:"drag"`
}

func getBoard(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newBoardRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		query := strings.TrimSpace(c.QueryParam("q"))
		metrics.SetQueryProvided(query != "")

		viewStart := time.Now()
		view := svc.View(query)
		metrics.ObserveView(time.Since(viewStart))

		returned := 0
		for _, col := range view.Columns {
			returned += col.Count
		}
		metrics.SetTasks(returned, view.Total)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, view)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := svc.Get(c.Param("id"))
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		}
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var f domain.Fields
		if err := decodeBody(c, taskMaxSize, &f); err != nil {
			return badBody(c)
		}
		t, err := svc.Create(c.Request().Context(), f)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func updateTask(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var f domain.Fields
		if err := decodeBody(c, taskMaxSize, &f); err != nil {
			return badBody(c)
		}
		t, err := svc.Update(c.Request().Context(), c.Param("id"), f)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func moveTask(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decodeBody(c, taskMaxSize, &req); err != nil {
			return badBody(c)
		}
		t, changed, err := svc.Move(c.Request().Context(), c.Param("id"), req.Status)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, moveResponse{Task: t, Changed: changed})
	}
}

func dragStart(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dragStartRequest
		if err := decodeBody(c, taskMaxSize, &req); err != nil {
			return badBody(c)
		}
		if err := svc.DragStart(req.ID); err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, svc.View("").Drag)
	}
}

func dragOver(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dragOverRequest
		if err := decodeBody(c, dragMaxSize, &req); err != nil {
			return badBody(c)
		}
		idx, err := svc.DragOver(req.Status, req.PointerY, req.Siblings)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, dragOverResponse{Index: idx})
	}
}

func dragDrop(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dropRequest
		if err := decodeBody(c, taskMaxSize, &req); err != nil {
			return badBody(c)
		}
		res, err := svc.Drop(c.Request().Context(), req.Status)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func dragEnd(svc Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, dragEndResponse{Cancelled: svc.DragEnd()})
	}
}

func exportBoard(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := svc.Export()
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+board.ExportFileName+`"`)
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	}
}

func importBoard(svc Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := io.ReadAll(io.LimitReader(c.Request().Body, importMaxSize+1))
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}
			return badBody(c)
		}
		if len(data) > importMaxSize {
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "import too large"})
		}
		n, err := svc.Import(c.Request().Context(), data)
		if err != nil {
			return writeError(c, svc, logger, err)
		}
		return c.JSON(http.StatusOK, importResponse{Imported: n})
	}
}

package directory

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/directory/pkg/pagination"
)

// loadFailureMessage is the only error text a client sees when the record
// source fails.
const loadFailureMessage = "Failed to load patients data"

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts GET /data on legacy (served as /api/data) and the
// versioned patient routes on apiV1.
func (h *Handler) RegisterRoutes(legacy *echo.Group, apiV1 *echo.Group) {
	legacy.GET("/data", h.ListPatients)

	apiV1.GET("/patients", h.ListPatients)
	apiV1.GET("/patients/:id", h.GetPatient)
}

// ParamsFromContext builds query Params from the request. Invalid values
// are coerced, never rejected: page and limit fall back to 1 and 50, and
// unrecognised sortBy or sortOrder values disable that sort pass.
func ParamsFromContext(c echo.Context) Params {
	pg := pagination.FromContext(c)
	return Params{
		Page:     pg.Page,
		PageSize: pg.Limit,
		Search:   c.QueryParam("search"),
		SortBy:   ParseSortField(c.QueryParam("sortBy")),
		IDOrder:  ParseIDOrder(c.QueryParam("sortOrder")),
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	res, err := h.svc.Query(c.Request().Context(), ParamsFromContext(c))
	if err != nil {
		return h.loadFailure(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(res.Records, res.Pagination))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return h.loadFailure(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// loadFailure answers a failed load with the opaque 500 body. When the
// request deadline expired during the load, the error is returned unwritten
// so the timeout middleware can answer 504.
func (h *Handler) loadFailure(c echo.Context, err error) error {
	rid, _ := c.Get("request_id").(string)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(c.Request().Context().Err(), context.DeadlineExceeded) {
		h.logger.Warn().Err(err).Str("request_id", rid).Msg("request deadline exceeded while reading data")
		return err
	}
	h.logger.Error().Err(err).Str("request_id", rid).Msg("error reading data")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": loadFailureMessage})
}

package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solatis/ratekeeper/internal/types"
)

// errorBody is the JSON error response of the HTTP binding.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterRoutes mounts the quote endpoints on e.
func RegisterRoutes(e *echo.Echo, svc *QuoteService) {
	g := e.Group("/v1/quotes")
	g.POST("/insurance", handleInsurance(svc))
	g.POST("/registration", handleRegistration(svc))
	g.POST("/on-road", handleOnRoad(svc))
	g.GET("/:id", handleGetQuote(svc))
}

func handleInsurance(svc *QuoteService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req InsuranceRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		return respond(c, func(ctx context.Context) (any, error) {
			return svc.QuoteInsurance(ctx, &req)
		})
	}
}

func handleRegistration(svc *QuoteService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req RegistrationRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		return respond(c, func(ctx context.Context) (any, error) {
			return svc.QuoteRegistration(ctx, &req)
		})
	}
}

func handleOnRoad(svc *QuoteService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req OnRoadRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		return respond(c, func(ctx context.Context) (any, error) {
			return svc.QuoteOnRoad(ctx, &req)
		})
	}
}

func handleGetQuote(svc *QuoteService) echo.HandlerFunc {
	return func(c echo.Context) error {
		return respond(c, func(ctx context.Context) (any, error) {
			return svc.GetQuote(ctx, types.QuoteID(c.Param("id")))
		})
	}
}

func respond(c echo.Context, call func(context.Context) (any, error)) error {
	out, err := call(c.Request().Context())
	if err != nil {
		class := classify(err)
		return c.JSON(class.http, errorBody{Error: err.Error(), Code: class.name})
	}
	return c.JSON(http.StatusOK, out)
}

func badRequest(c echo.Context, err error) error {
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		if inner, ok := he.Message.(string); ok {
			msg = inner
		}
	}
	return c.JSON(http.StatusBadRequest, errorBody{Error: ErrBadRequest.Error() + ": " + msg, Code: classInvalid.name})
}

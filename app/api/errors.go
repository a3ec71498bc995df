package api

import (
	"errors"
	"fmt"
	"time"

	"policyrag/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps the domain error taxonomy onto HTTP responses. A
// generation failure still ships the retrieved sources so the client
// can show provenance for what was found.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(types.ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var emptyIndex types.EmptyIndexError
	if errors.As(err, &emptyIndex) {
		return c.Status(fiber.StatusConflict).JSON(Error{
			Code:    fiber.StatusConflict,
			Message: emptyIndex.Error(),
		})
	}

	var genErr types.AnswerGenerationError
	if errors.As(err, &genErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"code":    fiber.StatusBadGateway,
			"error":   genErr.Error(),
			"stage":   genErr.Stage,
			"sources": genErr.Sources,
		})
	}

	var fetchErr types.FetchError
	if errors.As(err, &fetchErr) {
		return c.Status(fiber.StatusBadGateway).JSON(Error{
			Code:    fiber.StatusBadGateway,
			Message: fetchErr.Error(),
		})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	apiError := NewError(code, err.Error())
	curTime := time.Now()
	fmt.Printf("%s Request failed with code %d and message: %s\n", &curTime, apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

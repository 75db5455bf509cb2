package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response renders itself.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// ErrorBody is the error envelope of every JSON error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
	err    error
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	if j.body == nil {
		w.WriteHeader(j.status)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders data with status.
func JSON(status int, data any) Response {
	return jsonResponse{status: status, body: data}
}

// NoContent renders an empty 204.
func NoContent() Response {
	return jsonResponse{status: http.StatusNoContent}
}

// JSONError renders err as an error envelope.
func JSONError(err error) Response {
	status, detail := errorDetail(err)
	return jsonResponse{status: status, body: ErrorBody{Error: detail}, err: err}
}

func errorDetail(err error) (int, ErrorDetail) {
	var (
		valErr  ValidationError
		httpErr HTTPError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, ErrorDetail{
			Code:    "validation_error",
			Message: "request validation failed",
			Details: valErr,
		}
	case errors.As(err, &httpErr):
		return httpErr.Code, ErrorDetail{Code: httpErr.Key, Message: http.StatusText(httpErr.Code)}
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidParam):
		return http.StatusBadRequest, ErrorDetail{Code: ErrBadRequest.Key, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

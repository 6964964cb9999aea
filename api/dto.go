package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/rushteam/creditiq/core"
)

var validate = validator.New()

// PredictRequest 是 POST /api/predict 的请求体
type PredictRequest struct {
	Features   map[string]any `json:"features"`
	CustomerID string         `json:"customer_id" validate:"omitempty,max=128,printascii"`
}

// decodePredictRequest 解析并校验请求体。
// 数值按 json.Number 解码，避免大整数丢精度；features 缺失时视为空。
func decodePredictRequest(r io.Reader) (*PredictRequest, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var req PredictRequest
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, invalidInput(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), nil)
		case errors.Is(err, io.EOF):
			return nil, invalidInput("request body is empty", nil)
		default:
			return nil, invalidInput("invalid JSON body", err)
		}
	}
	if err := validate.Struct(&req); err != nil {
		return nil, invalidInput("invalid request", err)
	}
	if req.Features == nil {
		req.Features = map[string]any{}
	}
	return &req, nil
}

func invalidInput(msg string, err error) error {
	if err == nil {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, msg)
	}
	return core.WrapDomainError(core.ModuleService, core.ErrorCodeInvalidInput, msg, err)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

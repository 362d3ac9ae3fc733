package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dukerupert/pocketmoney/internal/apperr"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1 // server or infrastructure error
	ExitClient  = 2 // validation, authorization or state error
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if apperr.IsClient(err) {
		return ExitClient
	}
	return ExitFailure
}

type output struct {
	format string
	w      io.Writer
}

type response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// success writes data as JSON, or calls text to render it otherwise.
func (o *output) success(data any, text func(w io.Writer)) error {
	if o.format == "json" {
		return json.NewEncoder(o.w).Encode(response{Status: "ok", Data: data})
	}
	text(o.w)
	return nil
}

// WriteError renders err for the given format.
func WriteError(w io.Writer, format string, err error) {
	code := string(apperr.CodeOf(err))
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	if code == "" {
		code = "internal"
	}

	if format == "json" {
		json.NewEncoder(w).Encode(response{Status: "error", Error: &errorBody{Code: code, Message: msg}})
		return
	}
	fmt.Fprintf(w, "error [%s]: %s\n", code, msg)
}

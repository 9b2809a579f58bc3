package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonError is the --json shape of a failed command.
type jsonError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputJSON(v interface{}) {
	if err := writeJSON(os.Stdout, v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError reports err on stderr and exits 1.
func outputJSONError(err error) {
	_ = writeJSON(os.Stderr, jsonError{Error: err.Error(), Code: errorCode(err)})
	os.Exit(1)
}

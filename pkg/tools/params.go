package tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StringParam extracts a string argument. A missing argument is an error
// only when required.
func StringParam(req mcp.CallToolRequest, key string, required bool) (string, error) {
	val, exists := req.Params.Arguments[key]
	if !exists || val == nil {
		if required {
			return "", fmt.Errorf("%w: missing required parameter '%s'", ErrInvalidParams, key)
		}
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: parameter '%s' must be a string", ErrInvalidParams, key)
	}

	return str, nil
}

// IntParam extracts a numeric argument, which JSON delivers as float64, and
// returns fallback when it is absent.
func IntParam(req mcp.CallToolRequest, key string, fallback int) (int, error) {
	val, exists := req.Params.Arguments[key]
	if !exists || val == nil {
		return fallback, nil
	}

	f, ok := val.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: parameter '%s' must be a number", ErrInvalidParams, key)
	}

	return int(f), nil
}

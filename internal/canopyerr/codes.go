// Package canopyerr provides the closed set of service error codes and the
// {code, message, hint} envelope returned by the HTTP API and consumed by
// the client runtime and CLI front end.
//
//   - Handle-level codes (handle_not_found, stale_index, stale_generation)
//     are isolated: other handles in the same expand batch still succeed.
//   - Repo-level codes (repo_not_found, invalid_repo) fail the whole
//     request.
//   - Infrastructure codes (connection_error, internal_error, parse_error,
//     timeout, index_error, no_service_url) fail the whole request.
//   - Config codes (schema_version_mismatch) are fatal for the operation
//     but recoverable by user action (reindex, re-init).
package canopyerr

// Code is one of the closed set of error codes from the service API
// contract, plus the http_<status> fallback for unclassified transport
// errors.
type Code string

const (
	CodeRepoNotFound          Code = "repo_not_found"
	CodeHandleNotFound        Code = "handle_not_found"
	CodeStaleGeneration       Code = "stale_generation"
	CodeStaleIndex            Code = "stale_index"
	CodeSchemaVersionMismatch Code = "schema_version_mismatch"
	CodeInvalidRepo           Code = "invalid_repo"
	CodeIndexError            Code = "index_error"
	CodeTimeout               Code = "timeout"
	CodeConnectionError       Code = "connection_error"
	CodeParseError            Code = "parse_error"
	CodeNoServiceURL          Code = "no_service_url"
	CodeInternalError         Code = "internal_error"
)

// Category classifies a code by its failure-isolation scope (spec §7).
type Category string

const (
	CategoryHandle  Category = "handle"
	CategoryRepo    Category = "repo"
	CategoryInfra   Category = "infra"
	CategoryConfig  Category = "config"
	CategoryUnknown Category = "unknown"
)

func categoryOf(code Code) Category {
	switch code {
	case CodeHandleNotFound, CodeStaleIndex, CodeStaleGeneration:
		return CategoryHandle
	case CodeRepoNotFound, CodeInvalidRepo:
		return CategoryRepo
	case CodeConnectionError, CodeInternalError, CodeParseError, CodeTimeout, CodeIndexError, CodeNoServiceURL:
		return CategoryInfra
	case CodeSchemaVersionMismatch:
		return CategoryConfig
	default:
		return CategoryUnknown
	}
}

// isRetryable reports whether a caller may reasonably retry the operation
// unchanged (infra-level transients) as opposed to needing corrective
// action first.
func isRetryable(code Code) bool {
	switch code {
	case CodeTimeout, CodeConnectionError:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a code to the status the service layer should respond
// with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeRepoNotFound, CodeHandleNotFound:
		return 404
	case CodeStaleGeneration:
		return 409
	case CodeInvalidRepo:
		return 400
	case CodeTimeout:
		return 504
	case CodeConnectionError:
		return 502
	case CodeSchemaVersionMismatch, CodeStaleIndex, CodeIndexError, CodeParseError, CodeNoServiceURL:
		return 422
	default:
		return 500
	}
}

// HTTPCode builds the http_<status> fallback code for a transport-level
// failure that doesn't map to one of the named codes above.
func HTTPCode(status int) Code {
	return Code("http_" + itoa(status))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

package rest

import "fmt"

// HTTPError is returned for any non-200 response. When the body carried a
// Binance error object it is available through errors.As as an *APIError.
type HTTPError struct {
	StatusCode int
	Body       []byte
	API        *APIError
}

func (e *HTTPError) Error() string {
	if e.API != nil {
		return fmt.Sprintf("server responded with a %d status code: %s", e.StatusCode, e.API.Error())
	}
	return fmt.Sprintf("server responded with a %d status code", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}

// APIError is the {"code","msg"} object Binance puts in error responses.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error (code: %d, message: %s)", e.Code, e.Message)
}

// populated reports whether the decoded object actually held an error rather
// than an unrelated payload that happened to decode into the struct.
func (e *APIError) populated() bool {
	return e != nil && e.Code != 0 && e.Message != ""
}

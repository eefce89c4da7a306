package httpapi

// Result is the JSON envelope for every API response.
// code 2000 is success; -1 is a generic failure; kind carries the error taxonomy name.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(kind, message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Kind: kind, Message: message}
}

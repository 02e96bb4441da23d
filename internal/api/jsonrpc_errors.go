package api

import (
	"errors"

	"microloan/go-client/internal/fault"
)

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: -32602, Message: "invalid params"}
}

// rpcCodeByFault assigns each fault code a stable JSON-RPC error code
// so clients can branch without parsing messages.
var rpcCodeByFault = map[fault.Code]int{
	fault.CodeValidation:          -32001,
	fault.CodeAgentUnavailable:    -32002,
	fault.CodeAuthorizationDenied: -32003,
	fault.CodeRejected:            -32004,
	fault.CodeNetwork:             -32005,
	fault.CodeProtocol:            -32006,
	fault.CodeOperationInProgress: -32007,
	fault.CodePartialReadFailure:  -32008,
	fault.CodeTimeout:             -32009,
	fault.CodeConfiguration:       -32010,
}

func mapServiceError(err error) *rpcError {
	code, ok := fault.CodeOf(err)
	if !ok {
		return &rpcError{Code: -32000, Message: err.Error()}
	}
	rpcCode, ok := rpcCodeByFault[code]
	if !ok {
		rpcCode = -32000
	}
	data := map[string]string{"fault": string(code)}
	var f *fault.Fault
	if errors.As(err, &f) && f.Field != "" {
		data["field"] = f.Field
	}
	return &rpcError{Code: rpcCode, Message: err.Error(), Data: data}
}

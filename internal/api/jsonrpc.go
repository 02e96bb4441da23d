package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"microloan/go-client/pkg/models"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	if !s.limiter.Allow(req.Method, time.Now()) {
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32029, Message: "rate limited"},
		})
		return
	}

	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	s.log.Info("rpc request", "request_id", reqID, "method", req.Method)

	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.log.Warn("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		s.log.Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{
			"status":    "ok",
			"operation": s.service.OperationState(),
		}, nil

	case "session_connect":
		status, err := s.service.SessionConnect(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return status, nil

	case "session_status":
		return s.service.SessionStatus(), nil

	case "session_disconnect":
		return s.service.SessionDisconnect(), nil

	case "loans_list":
		loans, err := s.service.LoansList(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return map[string]any{"loans": loans}, nil

	case "loans_request":
		var input models.LoanRequestInput
		if !decodeParams(rawParams, &input) {
			return nil, rpcInvalidParams()
		}
		ticket, err := s.service.LoansRequest(ctx, input)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return ticket, nil

	case "loans_repay":
		var params struct {
			LoanID uint64 `json:"loan_id"`
		}
		if !decodeParams(rawParams, &params) {
			return nil, rpcInvalidParams()
		}
		ticket, err := s.service.LoansRepay(ctx, params.LoanID)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return ticket, nil

	case "stats_get":
		stats, err := s.service.StatsGet(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return stats, nil

	case "notifications_poll":
		var params struct {
			FromSeq int64 `json:"from_seq"`
		}
		if len(rawParams) > 0 && !decodeParams(rawParams, &params) {
			return nil, rpcInvalidParams()
		}
		events := s.service.NotificationsSince(params.FromSeq)
		lastSeq := params.FromSeq
		if len(events) > 0 {
			lastSeq = events[len(events)-1].Seq
		}
		return map[string]any{"events": events, "last_seq": lastSeq}, nil
	}
	return nil, &rpcError{Code: -32601, Message: "method not found"}
}

func decodeParams(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst) == nil
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: -32600, Message: "invalid request"},
	})
}

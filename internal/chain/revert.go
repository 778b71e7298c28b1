package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

// decodeCallError turns an eth_call / eth_estimateGas failure into a
// RevertError when the node reports revert data, and into a ServiceError
// otherwise.
func decodeCallError(method string, err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				return decodeRevert(method, data)
			}
		}
	}

	if strings.Contains(err.Error(), "execution reverted") {
		return &model.RevertError{Method: method, Reason: err.Error()}
	}

	return &model.ServiceError{Service: "eth-rpc", Step: method, Err: err}
}

// decodeRevert decodes revert data against the known custom errors, then
// as Error(string) / Panic(uint256).
func decodeRevert(method string, data []byte) *model.RevertError {
	revert := &model.RevertError{Method: method}
	if len(data) < 4 {
		return revert
	}

	var sel [4]byte
	copy(sel[:], data[:4])
	if e, ok := knownErrors[sel]; ok {
		revert.Name = e.Name
		if args, err := e.Unpack(data); err == nil {
			if list, ok := args.([]any); ok {
				revert.Args = list
			}
		}
		return revert
	}

	if reason, err := abi.UnpackRevert(data); err == nil {
		revert.Reason = reason
		return revert
	}

	revert.Reason = fmt.Sprintf("unknown revert selector %s", hexutil.Encode(sel[:]))
	return revert
}

func abiConvert[T any](v any) *T {
	return abi.ConvertType(v, new(T)).(*T)
}

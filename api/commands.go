package api

import (
	"fmt"
	"strconv"

	"vcu_miner/device"
	"vcu_miner/jsonrpc"
	"vcu_miner/version"
)

// Commands answers the line protocol on the command port with the same data
// the HTTP API serves.
func Commands(miner Miner) jsonrpc.HandlerFunc {
	return func(req *jsonrpc.APIRequest) (interface{}, error) {
		switch req.Command {
		case "version":
			return version.GetVersionConfig(), nil
		case "summary":
			return summarize(miner), nil
		case "devs":
			return miner.Snapshots(), nil
		case "dev":
			id, err := paramID(req.Parameter)
			if err != nil {
				return nil, err
			}
			for _, d := range miner.Snapshots() {
				if d.ID == id {
					return d, nil
				}
			}
			return nil, fmt.Errorf("device %d: %w", id, device.ErrDevNotExist)
		case "restart":
			miner.Restart()
			return nil, nil
		default:
			return nil, fmt.Errorf("invalid command %q", req.Command)
		}
	}
}

func paramID(p interface{}) (uint, error) {
	switch v := p.(type) {
	case float64:
		if v >= 0 {
			return uint(v), nil
		}
	case string:
		n, err := strconv.ParseUint(v, 10, 32)
		if err == nil {
			return uint(n), nil
		}
	}
	return 0, fmt.Errorf("invalid device id %v", p)
}

package jsonrpc

import (
	"encoding/json"
	"time"

	"vcu_miner/log"
)

const (
	STATUS_SUCCESS = "S"
	STATUS_ERROR   = "E"
)

type Response struct {
	Status string          `json:"STATUS"`
	When   int64           `json:"When"`
	Msg    string          `json:"Msg,omitempty"`
	Data   json.RawMessage `json:"Data,omitempty"`
}

func (r *Response) OK() bool {
	return r.Status == STATUS_SUCCESS
}

func OKResponse(command string, data interface{}) *Response {
	r := &Response{Status: STATUS_SUCCESS, When: time.Now().Unix(), Msg: command}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return ErrorResponse(err.Error())
		}
		r.Data = b
	}
	return r
}

func ErrorResponse(msg string) *Response {
	return &Response{Status: STATUS_ERROR, When: time.Now().Unix(), Msg: msg}
}

func PrepareJSONResponse(v interface{}) ([]byte, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		log.Errorf("err %v", err)
		return nil, err
	}
	n := len(jsonResponse)
	if n > 0 {
		if jsonResponse[n-1] != '\n' {
			jsonResponse = append(jsonResponse, '\n')
		}
	}
	return jsonResponse, nil
}

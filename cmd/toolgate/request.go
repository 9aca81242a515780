package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/toolgate/gate"
)

// readActionRequest loads a request from a JSON file ("-" for stdin). A
// missing id gets a fresh uuid and a missing creation time gets now, so a
// dispatcher can pipe minimal payloads through.
func readActionRequest(path string) (gate.ActionRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return gate.ActionRequest{}, fmt.Errorf("read request: %w", err)
	}

	var req gate.ActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return gate.ActionRequest{}, fmt.Errorf("parse request: %w", err)
	}
	if strings.TrimSpace(req.Tool) == "" {
		return gate.ActionRequest{}, fmt.Errorf("request has no tool name")
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = "act_" + uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	return req, nil
}

func readActionSignature(path string) (gate.ActionSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gate.ActionSignature{}, fmt.Errorf("read signature: %w", err)
	}
	var sig gate.ActionSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return gate.ActionSignature{}, fmt.Errorf("parse signature: %w", err)
	}
	return sig, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

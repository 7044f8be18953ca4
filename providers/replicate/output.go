package replicate

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/types"
)

// DecodeOutput maps a prediction output onto the tagged response variants:
// arrays become a Sequence, strings a Scalar, objects with a string "url" a
// Location and objects whose "url" is a link object an Accessor.
func DecodeOutput(raw json.RawMessage) (generation.RawResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, types.NewProviderError(types.ProviderMalformed, "replicate", "prediction succeeded without output")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, types.NewProviderError(types.ProviderMalformed, "replicate", "undecodable prediction output").WithCause(err)
	}

	if arr, ok := v.([]any); ok {
		seq := make(generation.Sequence, 0, len(arr))
		for _, el := range arr {
			seq = append(seq, decodeItem(el))
		}
		return seq, nil
	}
	return decodeItem(v), nil
}

func decodeItem(v any) generation.Item {
	obj, ok := v.(map[string]any)
	if !ok {
		return generation.Scalar{Value: v}
	}
	switch u := obj["url"].(type) {
	case string:
		return generation.Location{URL: u}
	case map[string]any:
		return generation.Accessor{Resolve: func(context.Context) (string, error) {
			href, _ := u["href"].(string)
			if href == "" {
				b, _ := json.Marshal(obj)
				return "", types.NewExtractionError("file output has no href", b)
			}
			return href, nil
		}}
	}
	return generation.Scalar{Value: v}
}

// JoinText concatenates a token-stream output (array of strings) or returns
// a plain string output as is.
func JoinText(raw json.RawMessage) (string, error) {
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		var buf bytes.Buffer
		for _, p := range parts {
			buf.WriteString(p)
		}
		return buf.String(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return "", types.NewProviderError(types.ProviderMalformed, "replicate", "text output is neither a string nor a token list")
}

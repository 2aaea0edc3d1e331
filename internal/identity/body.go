package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
)

const (
	mediaJSON = "application/json"
	mediaForm = "application/x-www-form-urlencoded"
)

// normalizeBody turns a JSON or form-encoded provider answer into a flat map.
// The Content-Type header wins; sniffing is only used when it is missing or unhelpful.
func normalizeBody(contentType string, body []byte) (map[string]string, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case mediaJSON:
			return parseJSONBody(body)
		case mediaForm:
			return parseFormBody(body)
		}
	}

	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return parseJSONBody(trimmed)
	case bytes.Contains(trimmed, []byte("=")) && bytes.Contains(trimmed, []byte("&")):
		return parseFormBody(trimmed)
	default:
		return parseJSONBody(trimmed)
	}
}

func parseJSONBody(body []byte) (map[string]string, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}

	out := map[string]string{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return out, nil
	}
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out, nil
}

func parseFormBody(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(bytes.TrimSpace(body)))
	if err != nil {
		return nil, fmt.Errorf("decode form body: %w", err)
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}

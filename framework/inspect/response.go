package inspect

import (
	"encoding/json"
	"net/http"

	"gopkg.in/yaml.v3"
)

// response writes JSON, or YAML when the request asks for ?format=yaml.
type response struct {
	w    http.ResponseWriter
	yaml bool
}

func newResponse(w http.ResponseWriter, r *http.Request) *response {
	return &response{w: w, yaml: r.URL.Query().Get("format") == "yaml"}
}

func (res *response) write(status int, data any) {
	if res.yaml {
		res.w.Header().Set("Content-Type", "application/yaml")
		res.w.WriteHeader(status)
		enc := yaml.NewEncoder(res.w)
		enc.SetIndent(2)
		_ = enc.Encode(data)
		_ = enc.Close()
		return
	}
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200: {"data": v}
func (res *response) Success(v any) {
	res.write(http.StatusOK, envelope{"data": v})
}

// Error sends an error response: {"message": msg}
func (res *response) Error(status int, message string) {
	res.write(status, envelope{"message": message})
}

// NotFound sends 404.
func (res *response) NotFound(message ...string) {
	res.Error(http.StatusNotFound, first(message, "Not found."))
}

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}

package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GetRequiredPathParameters reads the given route parameters as unsigned
// integers. If one is missing or malformed, it writes a 400 status code with
// the reason and returns false. The returned logger carries every parameter.
func GetRequiredPathParameters(w http.ResponseWriter, r *http.Request, paramKeys ...string) (map[string]uint64, zerolog.Logger, bool) {
	ps := httprouter.ParamsFromContext(r.Context())
	params := make(map[string]uint64, len(paramKeys))
	logger := log.With()
	for _, key := range paramKeys {
		raw := ps.ByName(key)
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("expected %s to be an unsigned integer", key), http.StatusBadRequest)
			return nil, zerolog.Nop(), false
		}
		params[key] = value
		logger = logger.Uint64(key, value)
	}
	return params, logger.Logger(), true
}

// GetBoolQueryParameter returns the value of a boolean query parameter, or
// fallback when it is absent.
func GetBoolQueryParameter(r *http.Request, key string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("expected %s query parameter to be a boolean: %w", key, err)
	}
	return v, nil
}

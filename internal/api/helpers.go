package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kamilpajak/testpulse/internal/store"
)

// floatParam reads an optional float query parameter.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

// intParam reads an optional integer query parameter.
func intParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func filterFromQuery(q url.Values) store.Filter {
	return store.Filter{
		Configuration: strings.TrimSpace(q.Get("configuration")),
		Build:         strings.TrimSpace(q.Get("build")),
		Domain:        strings.TrimSpace(q.Get("domain")),
	}
}

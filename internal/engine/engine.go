package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

// Request is one batched evaluation: a situation (possibly with axes) under a
// reform. A nil reform evaluates current law.
type Request struct {
	Situation *household.Situation
	Reform    policy.Reform
	Year      int
}

type requestBody struct {
	Household *household.Situation `json:"household"`
	Policy    policy.Reform        `json:"policy"`
}

// Body returns the JSON payload sent to the engine.
func (r Request) Body() ([]byte, error) {
	if r.Situation == nil {
		return nil, fmt.Errorf("request has no situation")
	}
	reform := r.Reform
	if reform == nil {
		reform = policy.Reform{}
	}
	return json.Marshal(requestBody{Household: r.Situation, Policy: reform})
}

// Fingerprint identifies the request for caching.
func (r Request) Fingerprint(engineName string) (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(engineName))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Result is the computed situation returned by the engine.
type Result struct {
	Raw  []byte
	Year int
}

// Values extracts a computed variable. Requests with axes yield one value per
// evaluated point; plain requests yield a single value. Booleans read as 0/1.
func (r *Result) Values(v household.Variable) ([]float64, error) {
	path := strings.Join([]string{
		escape(v.Entity), escape(v.Group()), escape(v.Name), strconv.Itoa(r.Year),
	}, ".")
	res := gjson.GetBytes(r.Raw, path)
	if !res.Exists() {
		return nil, fmt.Errorf("engine result missing %s", v.Name)
	}
	if !res.IsArray() {
		return []float64{res.Float()}, nil
	}
	items := res.Array()
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.Float()
	}
	return out, nil
}

func escape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(key)
}

// Simulator evaluates situations under reforms.
type Simulator interface {
	Name() string
	Calculate(ctx context.Context, req Request) (*Result, error)
}

// StatusError is returned when the engine answers with a failure.
type StatusError struct {
	Engine  string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s api status %d: %s", e.Engine, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Engine, e.Message)
}

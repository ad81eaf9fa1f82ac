// Package census fetches per-state demographics from the U.S. Census Bureau
// ACS 5-year API and exposes them as a state-keyed lookup table.
//
// One build issues one request. Transport errors and non-success responses
// are fatal: there is no retry and no cached fallback.
package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"evdemand/internal/metrics"
	"evdemand/internal/normalize"
	"evdemand/internal/nullable"
	"evdemand/internal/schema"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

// DefaultBaseURL is the ACS 5-year 2022 endpoint.
const DefaultBaseURL = "https://api.census.gov/data/2022/acs/acs5"

// DefaultTimeout bounds the single round trip.
const DefaultTimeout = 60 * time.Second

// Output columns of the demographic lookup.
const (
	ColStateName    = "STATE_NAME"
	ColPopulation   = "POPULATION"
	ColMedianIncome = "MEDIAN_INCOME"
	ColStateFIPS    = "STATE_FIPS"
)

// ACS variables requested and their output names.
var variables = []struct{ acs, col string }{
	{"NAME", ColStateName},
	{"B01003_001E", ColPopulation},
	{"B19013_001E", ColMedianIncome},
}

// maxErrBody caps how much of a failed response is read for the message.
const maxErrBody = 64 << 10

// Fetcher returns the demographic lookup for one build.
type Fetcher interface {
	Fetch(ctx context.Context) (*table.Table, error)
}

// Client is the ACS HTTP client. The zero value is usable.
type Client struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// APIKey is sent as the "key" parameter when non-empty.
	APIKey string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// States maps returned names to codes. Zero value means NewStateTable().
	States normalize.StateTable
}

// RequestURL renders the request URL, including the key when set.
func (c *Client) RequestURL() (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("census base url: %w", err)
	}
	get := make([]string, len(variables))
	for i, v := range variables {
		get[i] = v.acs
	}
	q := u.Query()
	q.Set("get", strings.Join(get, ","))
	q.Set("for", "state:*")
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs the request and decodes the response.
//
// Output columns: state, STATE_NAME, POPULATION, MEDIAN_INCOME, STATE_FIPS
// (the last only when the service returns it). Names the state table does
// not know (e.g. Puerto Rico) get a nil state and never match a join.
//
// Errors:
//   - *Error for transport failures, non-2xx statuses, HTML error pages and
//     undecodable bodies.
func (c *Client) Fetch(ctx context.Context) (*table.Table, error) {
	reqURL, err := c.RequestURL()
	if err != nil {
		return nil, &Error{Stage: StageRequest, Err: err}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Stage: StageRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		metrics.RecordCensusRequest(0, time.Since(start))
		return nil, &Error{Stage: StageRequest, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordCensusRequest(resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &Error{Stage: StageRequest, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrBody {
			body = body[:maxErrBody]
		}
		return nil, &Error{
			Stage:      StageStatus,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Header.Get("Content-Type"), body),
		}
	}
	if isHTML(resp.Header.Get("Content-Type"), body) {
		return nil, &Error{
			Stage:      StageDecode,
			StatusCode: resp.StatusCode,
			Message:    errorMessage("text/html", body),
		}
	}

	t, err := c.decode(body)
	if err != nil {
		return nil, &Error{Stage: StageDecode, StatusCode: resp.StatusCode, Err: err}
	}
	return t, nil
}

// decode turns the ACS array-of-arrays body into the lookup table.
func (c *Client) decode(body []byte) (*table.Table, error) {
	var rows [][]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		if s, ok := h.(string); ok {
			idx[s] = i
		}
	}
	for _, v := range variables {
		if _, ok := idx[v.acs]; !ok {
			return nil, fmt.Errorf("response header missing %s", v.acs)
		}
	}
	fipsIx, hasFIPS := idx["state"]

	states := c.States
	if states.Len() == 0 {
		states = normalize.NewStateTable()
	}

	out := table.New("demographics", schema.ColState, ColStateName, ColPopulation, ColMedianIncome)
	if hasFIPS {
		out.AddColumn(ColStateFIPS)
	}
	for _, row := range rows[1:] {
		rec := make(records.Record, len(out.Columns))
		name := strings.TrimSpace(cell(row, idx["NAME"]))
		if name == "" {
			rec[ColStateName] = nil
			rec[schema.ColState] = nil
		} else {
			rec[ColStateName] = name
			if code := states.Code(name); code != "" {
				rec[schema.ColState] = code
			} else {
				rec[schema.ColState] = nil
			}
		}
		rec[ColPopulation] = nullable.Parse(cell(row, idx["B01003_001E"]))
		rec[ColMedianIncome] = nullable.Parse(cell(row, idx["B19013_001E"]))
		if hasFIPS {
			if f := cell(row, fipsIx); f != "" {
				rec[ColStateFIPS] = f
			} else {
				rec[ColStateFIPS] = nil
			}
		}
		out.Append(rec)
	}
	return out, nil
}

// cell returns row[i] as text; nulls and short rows are "".
func cell(row []any, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

package moex

import (
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/camuig/evo-trader/internal/logger"
)

// Client talks to the MOEX ISS REST API.
type Client struct {
	http   *resty.Client
	board  string
	logger *logger.Logger
}

func NewClient(baseURL, board string, timeout time.Duration, log *logger.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetJSONUnmarshaler(json.Unmarshal)

	return &Client{
		http:   client,
		board:  board,
		logger: log.Named("moex"),
	}
}

// issTable is the column/row shape of every ISS block.
type issTable struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

func (t issTable) index(names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, col := range t.Columns {
		idx[col] = i
	}
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return nil, fmt.Errorf("unexpected ISS columns %v: missing %s", t.Columns, n)
		}
	}
	return idx, nil
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

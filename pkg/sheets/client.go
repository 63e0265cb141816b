package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com"
	defaultTimeout = 10 * time.Second

	// Scope grants read/write access to spreadsheets.
	Scope = "https://www.googleapis.com/auth/spreadsheets"
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	SpreadsheetID string
	Tab           string
	// Columns is the width of one ledger row; the range A:<Columns> is read and written.
	Columns     int
	TokenSource oauth2.TokenSource
	Timeout     time.Duration
	Retries     int
	HTTPClient  *http.Client
}

// Client performs row-level operations against one tab of a spreadsheet.
type Client struct {
	http          *resty.Client
	tokens        oauth2.TokenSource
	spreadsheetID string
	tab           string
	lastColumn    string
}

// NewClient builds a Client. Only reads and in-place updates are retried;
// appends and structural deletes are not idempotent and run exactly once.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if strings.TrimSpace(opts.Tab) == "" {
		return nil, fmt.Errorf("sheets: tab title is required")
	}
	if opts.TokenSource == nil {
		return nil, fmt.Errorf("sheets: token source is required")
	}
	columns := opts.Columns
	if columns <= 0 {
		columns = 6
	}
	if columns > 26 {
		return nil, fmt.Errorf("sheets: at most 26 columns supported, got %d", columns)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if opts.Retries > 0 {
		rc.SetRetryCount(opts.Retries).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(retryIdempotent)
	}

	return &Client{
		http:          rc,
		tokens:        opts.TokenSource,
		spreadsheetID: opts.SpreadsheetID,
		tab:           opts.Tab,
		lastColumn:    string(rune('A' + columns - 1)),
	}, nil
}

// Tab returns the configured tab title.
func (c *Client) Tab() string {
	return c.tab
}

// RowRange returns the A1 range covering every ledger column of the tab.
func (c *Client) RowRange() string {
	return fmt.Sprintf("%s!A:%s", quoteTab(c.tab), c.lastColumn)
}

// KeyColumnRange returns the A1 range of the business-key column.
func (c *Client) KeyColumnRange() string {
	return fmt.Sprintf("%s!A:A", quoteTab(c.tab))
}

type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values"`
}

type appendResponse struct {
	Updates struct {
		UpdatedRange string `json:"updatedRange"`
	} `json:"updates"`
}

// Append inserts values as a new row at the bottom of the tab and returns its 1-based index.
func (c *Client) Append(ctx context.Context, values []string) (int, error) {
	const op = "append"
	resp, err := c.request(ctx, op)
	if err != nil {
		return 0, err
	}
	res, err := resp.
		SetPathParam("range", c.RowRange()).
		SetQueryParam("valueInputOption", "RAW").
		SetQueryParam("insertDataOption", "INSERT_ROWS").
		SetBody(valueRange{MajorDimension: "ROWS", Values: [][]interface{}{toInterfaces(values)}}).
		Post("/v4/spreadsheets/{spreadsheetId}/values/{range}:append")
	if err := checkResponse(op, res, err); err != nil {
		return 0, err
	}
	var out appendResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return 0, &UnavailableError{Op: op, Status: res.StatusCode(), Err: fmt.Errorf("decode append response: %w", err)}
	}
	return ParseRowFromRange(out.Updates.UpdatedRange)
}

// ReadRange returns the raw cell values of an A1 range. Trailing empty cells are omitted by the API.
func (c *Client) ReadRange(ctx context.Context, a1 string) ([][]string, error) {
	const op = "read"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	res, err := req.
		SetPathParam("range", a1).
		SetQueryParam("majorDimension", "ROWS").
		Get("/v4/spreadsheets/{spreadsheetId}/values/{range}")
	if err := checkResponse(op, res, err); err != nil {
		return nil, err
	}
	var out valueRange
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, &UnavailableError{Op: op, Status: res.StatusCode(), Err: fmt.Errorf("decode values: %w", err)}
	}
	rows := make([][]string, len(out.Values))
	for i, raw := range out.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			if cell == nil {
				continue
			}
			row[j] = fmt.Sprint(cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// UpdateRange overwrites the fixed column span of one row. There is no
// comparison with the current contents: the last writer wins.
func (c *Client) UpdateRange(ctx context.Context, row int, values []string) error {
	const op = "update"
	if row < 1 {
		return fmt.Errorf("sheets: invalid row %d", row)
	}
	req, err := c.request(ctx, op)
	if err != nil {
		return err
	}
	a1 := fmt.Sprintf("%s!A%d:%s%d", quoteTab(c.tab), row, c.lastColumn, row)
	res, err := req.
		SetPathParam("range", a1).
		SetQueryParam("valueInputOption", "RAW").
		SetBody(valueRange{Range: a1, MajorDimension: "ROWS", Values: [][]interface{}{toInterfaces(values)}}).
		Put("/v4/spreadsheets/{spreadsheetId}/values/{range}")
	return checkResponse(op, res, err)
}

type dimensionRange struct {
	SheetID    int64  `json:"sheetId"`
	Dimension  string `json:"dimension"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type deleteDimension struct {
	Range dimensionRange `json:"range"`
}

type batchRequest struct {
	DeleteDimension *deleteDimension `json:"deleteDimension,omitempty"`
}

type batchUpdate struct {
	Requests []batchRequest `json:"requests"`
}

// DeleteRows removes the given 1-based rows in one structural batch update.
func (c *Client) DeleteRows(ctx context.Context, tabID int64, rows []int) error {
	const op = "delete"
	ordered, err := DescendingRows(rows)
	if err != nil {
		return err
	}
	if len(ordered) == 0 {
		return nil
	}
	req, err := c.request(ctx, op)
	if err != nil {
		return err
	}
	body := batchUpdate{Requests: make([]batchRequest, 0, len(ordered))}
	for _, row := range ordered {
		body.Requests = append(body.Requests, batchRequest{DeleteDimension: &deleteDimension{
			Range: dimensionRange{SheetID: tabID, Dimension: "ROWS", StartIndex: row - 1, EndIndex: row},
		}})
	}
	res, err := req.SetBody(body).Post("/v4/spreadsheets/{spreadsheetId}:batchUpdate")
	return checkResponse(op, res, err)
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

// ResolveTabID looks up the structural id of a tab by its title.
func (c *Client) ResolveTabID(ctx context.Context, title string) (int64, error) {
	const op = "metadata"
	req, err := c.request(ctx, op)
	if err != nil {
		return 0, err
	}
	res, err := req.
		SetQueryParam("fields", "sheets.properties(sheetId,title)").
		Get("/v4/spreadsheets/{spreadsheetId}")
	if err := checkResponse(op, res, err); err != nil {
		return 0, err
	}
	var meta spreadsheetMeta
	if err := json.Unmarshal(res.Body(), &meta); err != nil {
		return 0, &UnavailableError{Op: op, Status: res.StatusCode(), Err: fmt.Errorf("decode metadata: %w", err)}
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties.Title == title {
			return sheet.Properties.SheetID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTabNotFound, title)
}

func (c *Client) request(ctx context.Context, op string) (*resty.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &UnavailableError{Op: op, Err: fmt.Errorf("obtain access token: %w", err)}
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetPathParam("spreadsheetId", c.spreadsheetID), nil
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func checkResponse(op string, res *resty.Response, err error) error {
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode()
		}
		return &UnavailableError{Op: op, Status: status, Err: err}
	}
	if res.IsSuccess() {
		return nil
	}
	message := strings.TrimSpace(res.String())
	var body apiErrorBody
	if json.Unmarshal(res.Body(), &body) == nil && body.Error.Message != "" {
		message = body.Error.Message
		if body.Error.Status != "" {
			message = body.Error.Status + ": " + message
		}
	}
	return &UnavailableError{Op: op, Status: res.StatusCode(), Message: message}
}

func retryIdempotent(res *resty.Response, err error) bool {
	if res == nil || res.Request == nil {
		return false
	}
	switch res.Request.Method {
	case http.MethodGet, http.MethodPut:
	default:
		return false
	}
	if err != nil {
		return true
	}
	status := res.StatusCode()
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
	domsvc "TradeFuse/internal/domain/service"
	xhttp "TradeFuse/pkg/http"

	"github.com/shopspring/decimal"
)

// RESTClient implements the exchange order/balance/candle capability over
// the REST API. The streaming half lives in internal/marketdata.
type RESTClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *xhttp.Client
}

// NewRESTClient creates an exchange REST client.
func NewRESTClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (c *RESTClient) headers() map[string]string {
	return map[string]string{
		"X-API-KEY":    c.apiKey,
		"X-API-SECRET": c.apiSecret,
		"Content-Type": "application/json",
	}
}

type placeOrderReq struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Quantity       string `json:"quantity"`
	Price          string `json:"price,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type placeOrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// PlaceOrder submits an order. The idempotency key travels both in the body
// and as a header so a retried request maps onto the original order.
func (c *RESTClient) PlaceOrder(ctx context.Context, req domsvc.OrderRequest) (domsvc.OrderAck, error) {
	body := placeOrderReq{
		Symbol:         req.Symbol,
		Side:           string(req.Side),
		Quantity:       req.Quantity.String(),
		IdempotencyKey: req.IdempotencyKey,
	}
	if !req.Price.IsZero() {
		body.Price = req.Price.String()
	}

	headers := c.headers()
	headers["Idempotency-Key"] = req.IdempotencyKey

	var resp placeOrderResp
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     c.baseURL + "/v1/orders",
		Headers: headers,
		Body:    body,
	}, &resp)
	if err != nil {
		return domsvc.OrderAck{}, fmt.Errorf("place order: %w", err)
	}

	status := models.OrderStatus(resp.Status)
	if status == "" {
		status = models.OrderOpen
	}
	return domsvc.OrderAck{ExchangeID: resp.OrderID, Status: status}, nil
}

// CancelOrder cancels an open order by exchange id.
func (c *RESTClient) CancelOrder(ctx context.Context, symbol, exchangeID string) error {
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodDelete,
		URL:     fmt.Sprintf("%s/v1/orders/%s", c.baseURL, exchangeID),
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"symbol": {symbol},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

type balanceResp struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
		Total string `json:"total"`
	} `json:"balances"`
}

// GetBalances returns account balances.
func (c *RESTClient) GetBalances(ctx context.Context) ([]domsvc.Balance, error) {
	var resp balanceResp
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.baseURL + "/v1/balances",
		Headers: c.headers(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	out := make([]domsvc.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("parse balance %s: %w", b.Asset, err)
		}
		total, err := decimal.NewFromString(b.Total)
		if err != nil {
			return nil, fmt.Errorf("parse balance %s: %w", b.Asset, err)
		}
		out = append(out, domsvc.Balance{Asset: b.Asset, Free: free, Total: total})
	}
	return out, nil
}

type candlesResp struct {
	Candles []struct {
		T int64   `json:"t"` // bucket start, unix seconds
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"candles"`
}

// GetCandles polls the REST candle endpoint, used to replay gaps after a
// stream outage.
func (c *RESTClient) GetCandles(ctx context.Context, symbol string, tf drepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	var resp candlesResp
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.baseURL + "/v1/candles",
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"timeframe": {string(tf)},
			"from":      {strconv.FormatInt(from.Unix(), 10)},
			"to":        {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	out := make([]models.Candle, 0, len(resp.Candles))
	for _, k := range resp.Candles {
		out = append(out, models.Candle{
			Symbol:    symbol,
			Timeframe: string(tf),
			Bucket:    time.Unix(k.T, 0).UTC(),
			Open:      k.O,
			High:      k.H,
			Low:       k.L,
			Close:     k.C,
			Volume:    k.V,
		})
	}
	return out, nil
}

type fillsResp struct {
	Fills []struct {
		FillID   string `json:"fill_id"`
		Side     string `json:"side"`
		Quantity string `json:"quantity"`
		Price    string `json:"price"`
		T        int64  `json:"t"` // unix seconds
	} `json:"fills"`
}

// GetFills returns the execution reports for one order. The ticker stream
// carries no fills, so the execution monitor polls this endpoint; fill ids
// are stable across redeliveries.
func (c *RESTClient) GetFills(ctx context.Context, symbol, exchangeID string) ([]models.Fill, error) {
	var resp fillsResp
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/v1/orders/%s/fills", c.baseURL, exchangeID),
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"symbol": {symbol},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get fills: %w", err)
	}

	out := make([]models.Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		qty, err := decimal.NewFromString(f.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse fill %s: %w", f.FillID, err)
		}
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, fmt.Errorf("parse fill %s: %w", f.FillID, err)
		}
		out = append(out, models.Fill{
			FillID:     f.FillID,
			ExchangeID: exchangeID,
			Symbol:     symbol,
			Side:       models.Side(f.Side),
			Quantity:   qty,
			Price:      price,
			Timestamp:  time.Unix(f.T, 0).UTC(),
		})
	}
	return out, nil
}

var _ domsvc.Exchange = (*RESTClient)(nil)

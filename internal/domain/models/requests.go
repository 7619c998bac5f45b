package models

// HTTP request models for the operator API. Validation tags follow
// go-playground/validator; defaults follow creasty/defaults.

type DecisionsRequest struct {
	Symbol string `query:"symbol" validate:"required,min=1,max=32"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type CandlesRequest struct {
	Symbol   string `query:"symbol" validate:"required,min=1,max=32"`
	TF       string `query:"tf" default:"1m"`
	Lookback int    `query:"n" default:"200" validate:"gte=1,lte=5000"`
}

type OrdersRequest struct {
	Symbol string `query:"symbol" validate:"required,min=1,max=32"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type ControlRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

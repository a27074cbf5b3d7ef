package common

import "context"

// Client abstracts the trading venue. The exchange is the source of truth:
// callers must treat AccountState as authoritative over any local view.
type Client interface {
	GetAccountState(ctx context.Context) (AccountState, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error)
	GetAllMidPrices(ctx context.Context) (map[string]float64, error)
	GetAssetMetadata(ctx context.Context) (map[string]AssetMeta, error)
}

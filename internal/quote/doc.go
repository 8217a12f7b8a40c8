// Package quote resolves stock symbols to a company name and latest price.
//
// Providers:
//   - Client: IEX-style REST endpoint, GET {base}/stock/{symbol}/quote?token=KEY
//   - Static: fixed price table for tests and offline use
//   - Cached: ristretto in-process cache, optional Redis, singleflight collapsing
//
// Every provider reports ErrNotFound for a symbol the source does not know
// and ErrUnavailable for transport failures or unusable data.
package quote

package wallet

import (
	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
)

// Registry resolves a coin to its provider.
type Registry struct {
	providers map[models.Coin]CoinWalletProvider
}

func NewRegistry(providers ...CoinWalletProvider) *Registry {
	r := &Registry{providers: make(map[models.Coin]CoinWalletProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Coin()] = p
	}
	return r
}

func (r *Registry) Get(coin models.Coin) (CoinWalletProvider, error) {
	p, ok := r.providers[coin]
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "unsupported coin %q", coin)
	}
	return p, nil
}

// All returns the providers in models.Coins order.
func (r *Registry) All() []CoinWalletProvider {
	out := make([]CoinWalletProvider, 0, len(r.providers))
	for _, c := range models.Coins {
		if p, ok := r.providers[c]; ok {
			out = append(out, p)
		}
	}
	return out
}

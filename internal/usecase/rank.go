package usecase

import (
	"sort"

	"avia-bot/internal/domain"
)

// rankOffers orders offers by price, then total travel time, then number of
// transfers, then earliest departure.
func rankOffers(offers []domain.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		a, b := offers[i], offers[j]
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		if a.DurationMinutes != b.DurationMinutes {
			return a.DurationMinutes < b.DurationMinutes
		}
		if ta, tb := a.Transfers+a.ReturnTransfers, b.Transfers+b.ReturnTransfers; ta != tb {
			return ta < tb
		}
		return a.DepartureAt.Before(b.DepartureAt)
	})
}

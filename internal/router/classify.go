package router

import (
	"strconv"
	"strings"

	"github.com/rickgao/rofex-data/internal/instrument"
	"github.com/rickgao/rofex-data/internal/model"
)

const (
	repoSegment = "PESOS"
	symbolSep   = " - "
	futureSep   = "/"

	minRepoDays = 1
	maxRepoDays = 60
)

// InstrumentClassifier answers whether a symbol is an option.
// *instrument.Cache implements it.
type InstrumentClassifier interface {
	Classify(symbol string) instrument.Class
}

// IsRepo reports whether symbol is a repo (caución), e.g.
// "MERV - XMEV - PESOS - 3D": the PESOS segment plus a trailing day count
// between 1 and 60.
func IsRepo(symbol string) bool {
	if !strings.Contains(symbol, repoSegment) {
		return false
	}
	parts := strings.Split(symbol, symbolSep)
	last := strings.TrimSpace(parts[len(parts)-1])
	days, ok := strings.CutSuffix(last, "D")
	if !ok || days == "" {
		return false
	}
	n, err := strconv.Atoi(days)
	if err != nil {
		return false
	}
	return n >= minRepoDays && n <= maxRepoDays
}

// IsFuture reports whether symbol carries a maturity separator, e.g.
// "DLR/FEB26". Repos never count as futures.
func IsFuture(symbol string) bool {
	return strings.Contains(symbol, futureSep) && !strings.Contains(symbol, repoSegment)
}

// Classify picks the quote table for symbol. First match wins: options per
// the instrument cache, repos per the symbol pattern, everything else in
// securities. future marks securities that are futures.
func Classify(cache InstrumentClassifier, symbol string) (category model.Category, future bool) {
	if cache != nil && cache.Classify(symbol) == instrument.ClassOption {
		return model.CategoryOptions, false
	}
	if IsRepo(symbol) {
		return model.CategoryRepos, false
	}
	return model.CategorySecurities, IsFuture(symbol)
}

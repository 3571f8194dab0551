package payment

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"
)

// USDCDecimals is the number of decimals of the settlement asset
const USDCDecimals = 6

// Route is a metered endpoint and its USD price.
type Route struct {
	Method      string
	Path        string
	Price       string
	Description string
}

// DefaultRoutes is the metered route table served by the API.
func DefaultRoutes() []Route {
	return []Route{
		{
			Method:      http.MethodGet,
			Path:        "/api/status",
			Price:       "$0.001",
			Description: "Agent status check - returns identity and capabilities",
		},
		{
			Method:      http.MethodPost,
			Path:        "/api/memory-query",
			Price:       "$0.005",
			Description: "Query memory store for relevant context",
		},
		{
			Method:      http.MethodGet,
			Path:        "/api/verify-agent",
			Price:       "$0.01",
			Description: "Verify ERC-8004 agent identity",
		},
		{
			Method:      http.MethodPost,
			Path:        "/api/security-audit",
			Price:       "$0.05",
			Description: "Heuristic security scan of contract source",
		},
	}
}

// AtomicAmount converts a USD price such as "$0.005" into integer units of an
// asset with the given number of decimals. Prices finer than one unit are rejected.
func AtomicAmount(price string, decimals int) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(price), "$")
	amount, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("invalid price %q", price)
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("price must be positive, got %q", price)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	amount.Mul(amount, new(big.Rat).SetInt(scale))
	if !amount.IsInt() {
		return "", fmt.Errorf("price %q is not representable with %d decimals", price, decimals)
	}
	return amount.Num().String(), nil
}

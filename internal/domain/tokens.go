package domain

import (
	"fmt"
	"strings"
)

// Input tokens accepted from imports and forms. Broker exports are in
// Traditional Chinese, so the local-language synonyms are first-class.
var (
	typeTokens = map[string]PositionType{
		"option": TypeOption,
		"選擇權":    TypeOption,
		"future": TypeFuture,
		"期貨":     TypeFuture,
	}
	sideTokens = map[string]Side{
		"buy":  SideBuy,
		"買":    SideBuy,
		"買進":   SideBuy,
		"sell": SideSell,
		"賣":    SideSell,
		"賣出":   SideSell,
	}
	callPutTokens = map[string]CallPut{
		"call": Call,
		"c":    Call,
		"買權":   Call,
		"put":  Put,
		"p":    Put,
		"賣權":   Put,
	}
)

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParsePositionType parses option/future or their local synonyms.
func ParsePositionType(s string) (PositionType, error) {
	if t, ok := typeTokens[normalizeToken(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown position type %q: use option or future", s)
}

// ParseSide parses buy/sell or their local synonyms.
func ParseSide(s string) (Side, error) {
	if side, ok := sideTokens[normalizeToken(s)]; ok {
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q: use buy or sell", s)
}

// ParseCallPut parses call/put, c/p or their local synonyms.
func ParseCallPut(s string) (CallPut, error) {
	if cp, ok := callPutTokens[normalizeToken(s)]; ok {
		return cp, nil
	}
	return "", fmt.Errorf("unknown option right %q: use call or put", s)
}

package accounts

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// NormalizeCode canonicalises an account code so visually equal codes collide
// on the unique index.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(code)))
}

func validateCode(code string) error {
	if code == "" {
		return shared.Invalid("account code required")
	}
	if len(code) > 32 {
		return shared.Invalid("account code %q too long", code)
	}
	if strings.ContainsAny(code, ". \t") {
		return shared.Invalid("account code %q must not contain dots or spaces", code)
	}
	return nil
}

func fullPath(parent *Account, code string) string {
	if parent == nil {
		return code
	}
	return parent.FullPath + "." + code
}

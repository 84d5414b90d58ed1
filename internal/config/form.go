package config

import (
	"fmt"
	"strings"
)

const (
	FormNone = "none"
	FormNFC  = "nfc"
	FormNFD  = "nfd"
	FormNFKC = "nfkc"
	FormNFKD = "nfkd"
)

func NormalizeForm(raw string) (string, error) {
	form := strings.ToLower(strings.TrimSpace(raw))
	if form == "" {
		form = FormNone
	}
	switch form {
	case FormNone, FormNFC, FormNFD, FormNFKC, FormNFKD:
		return form, nil
	case "off", "raw":
		return FormNone, nil
	default:
		return "", fmt.Errorf(
			"invalid normalization form %q (expected %s|%s|%s|%s|%s)",
			raw,
			FormNone,
			FormNFC,
			FormNFD,
			FormNFKC,
			FormNFKD,
		)
	}
}

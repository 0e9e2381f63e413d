package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// OrderCode returns a short human-readable receipt code, e.g. ORD-20260830-4F2A1C.
func OrderCode() string {
	return stampedCode("ORD")
}

// PONumber returns a purchase order number, e.g. PO-20260830-9B03D7.
func PONumber() string {
	return stampedCode("PO")
}

func stampedCode(prefix string) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s-%d", prefix, time.Now().UTC().Format("20060102"), time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
